package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thereceipt/bill-printer/internal/api"
	"github.com/thereceipt/bill-printer/internal/command"
	"github.com/thereceipt/bill-printer/internal/config"
	"github.com/thereceipt/bill-printer/internal/kvstore"
	"github.com/thereceipt/bill-printer/internal/printer"
	"github.com/thereceipt/bill-printer/internal/session"
	"github.com/thereceipt/bill-printer/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})

	store, err := kvstore.NewFile(cfg.StorePath())
	if err != nil {
		logger.Fatal("failed to open store", "path", cfg.StorePath(), "err", err)
	}

	networkPrinters, err := cfg.Devices()
	if err != nil {
		logger.Fatal("invalid network printers", "err", err)
	}

	transport := printer.NewTransport(cfg.Printer,
		printer.WithNetworkPrinters(networkPrinters...),
		printer.WithSubnetScan(cfg.ScanSubnet),
		printer.WithLogger(logger),
	)
	sess := session.New(transport, store,
		session.WithConfig(cfg.Printer),
		session.WithLogger(logger),
	)
	queue := session.NewQueue(sess, cfg.MaxAttempts, logger)

	server := api.NewServer(sess, queue, logger)
	server.SetReceiptText(cfg.StoreName, cfg.Footer)

	var console *tui.TViewApp
	if !cfg.Headless {
		executor := command.NewExecutor(sess, queue)
		executor.SetReceiptText(cfg.StoreName, cfg.Footer)
		console = tui.NewTViewApp(sess, queue, executor, cfg.Port)

		// The console owns the terminal; logs go to its panel only.
		logger.SetOutput(console.LogWriter())
		logger.SetReportTimestamp(false)
	}

	logger.Info("bill printer starting", "version", Version, "data", cfg.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		defer close(started)
		sess.Start(ctx)
	}()

	// The monitor's baseline is the list from the startup discovery pass.
	var monitor *session.Monitor
	if cfg.MonitorInterval > 0 {
		monitor = session.NewMonitor(sess, cfg.MonitorInterval)
		monitor.StartAfter(started)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(cfg.Addr())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	if console != nil {
		go func() {
			if err := console.Run(); err != nil {
				logger.Error("console error", "err", err)
			}
			close(consoleDone)
		}()
	}

	select {
	case err := <-serverErr:
		if console != nil {
			console.Stop()
		}
		if err != nil {
			logger.SetOutput(os.Stderr)
			logger.Fatal("server error", "err", err)
		}
	case <-sigChan:
		logger.Info("shutting down")
	case <-consoleDone:
	}

	if console != nil {
		console.Stop()
		logger.SetOutput(os.Stderr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	cancel()
	if monitor != nil {
		monitor.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "err", err)
	}
	queue.Stop()
	sess.Close()
}
