// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/bill-printer/internal/command"
	"github.com/thereceipt/bill-printer/internal/registry"
	"github.com/thereceipt/bill-printer/internal/renderer"
	"github.com/thereceipt/bill-printer/internal/session"
	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// Server is the API server
type Server struct {
	router   *gin.Engine
	session  *session.Session
	queue    *session.Queue
	executor *command.Executor
	composer *renderer.Composer
	upgrader websocket.Upgrader
	logger   *log.Logger

	storeName string
	footer    string

	httpServer *http.Server
	clients    map[*WSClient]bool
	clientsMu  sync.RWMutex
	stopEvents func()
	eventsDone chan struct{}
}

// NewServer creates a new API server and starts forwarding session events to
// websocket clients
func NewServer(s *session.Session, q *session.Queue, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("api")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	server := &Server{
		router:   router,
		session:  s,
		queue:    q,
		executor: command.NewExecutor(s, q),
		composer: renderer.NewComposer(),
		logger:   logger,
		clients:  make(map[*WSClient]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		eventsDone: make(chan struct{}),
	}

	server.setupRoutes()

	events, stop := s.Subscribe()
	server.stopEvents = stop
	go server.forwardEvents(events)

	return server
}

// SetReceiptText sets the store name and footer used for composed receipts
func (s *Server) SetReceiptText(storeName, footer string) {
	s.storeName = storeName
	s.footer = footer
	s.executor.SetReceiptText(storeName, footer)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/status", s.handleStatus)

	s.router.GET("/printers", s.handleGetPrinters)
	s.router.POST("/printers/discover", s.handleDiscover)
	s.router.POST("/printer/connect", s.handleConnect)
	s.router.POST("/printer/disconnect", s.handleDisconnect)

	s.router.POST("/preview", s.handlePreview)
	s.router.POST("/print", s.handlePrint)
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)

	s.router.POST("/command", s.handleCommand)

	s.router.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

type deviceView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	registry.Device
}

func viewDevice(d registry.Device) deviceView {
	return deviceView{ID: d.ID(), Name: d.DisplayName(), Kind: d.Kind(), Device: d}
}

func viewDevices(devices []registry.Device) []deviceView {
	views := make([]deviceView, len(devices))
	for i, d := range devices {
		views[i] = viewDevice(d)
	}
	return views
}

// handleStatus returns the connection state and job settings
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"state":  s.session.State(),
		"config": s.session.Config(),
	}
	if def, ok := s.session.Default(); ok {
		resp["default"] = viewDevice(def)
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetPrinters returns the devices from the last discovery
func (s *Server) handleGetPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"printers": viewDevices(s.session.Devices()),
	})
}

// handleDiscover runs a discovery pass
func (s *Server) handleDiscover(c *gin.Context) {
	devices, err := s.session.StartDiscovery(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrDiscoverySuperseded) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
			"message": "Failed to discover devices. Ensure Bluetooth is enabled.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"printers": viewDevices(devices),
	})
}

// handleConnect connects to a printer by MAC address or IP
func (s *Server) handleConnect(c *gin.Context) {
	var req registry.Device
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IP != "" && req.Port == 0 {
		req.Port = s.session.Config().Port
	}
	if req.ID() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "macAddress or ip is required"})
		return
	}
	if known, ok := s.session.Device(req.ID()); ok && req.DeviceName == "" {
		req.DeviceName = known.DeviceName
	}

	notice, err := s.session.Connect(c.Request.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrConnectSuperseded) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"success": false,
			"notice":  notice,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"notice":  notice,
		"state":   s.session.State(),
	})
}

// handleDisconnect drops the active printer
func (s *Server) handleDisconnect(c *gin.Context) {
	s.session.Disconnect()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   s.session.State(),
	})
}

type receiptRequest struct {
	Items     []float64 `json:"items" binding:"required"`
	StoreName string    `json:"storeName"`
	Footer    string    `json:"footer"`
}

func (s *Server) bindReceipt(c *gin.Context) (*receiptformat.Job, string, bool) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}

	job := &receiptformat.Job{
		Version:   receiptformat.Version,
		Items:     req.Items,
		StoreName: req.StoreName,
		Footer:    req.Footer,
	}
	if job.StoreName == "" {
		job.StoreName = s.storeName
	}
	if job.Footer == "" {
		job.Footer = s.footer
	}

	payload, err := s.composer.Compose(job)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt: " + err.Error()})
		return nil, "", false
	}
	return job, payload, true
}

// handlePreview returns the payload for a receipt without printing it
func (s *Server) handlePreview(c *gin.Context) {
	job, payload, ok := s.bindReceipt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payload": payload,
		"total":   renderer.FormatAmount(job.Total()),
		"items":   job.ItemCount(),
	})
}

// handlePrint composes a receipt and queues it
func (s *Server) handlePrint(c *gin.Context) {
	job, payload, ok := s.bindReceipt(c)
	if !ok {
		return
	}

	jobID := s.queue.Enqueue(payload)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  jobID,
		"total":   renderer.FormatAmount(job.Total()),
	})
}

// handleGetJobs returns all print jobs
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.queue.Jobs()})
}

// handleGetJob returns a specific print job
func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.queue.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)

	if !result.Success {
		resp := gin.H{
			"success": false,
			"error":   result.Error,
		}
		if result.Message != "" {
			resp["message"] = result.Message
		}
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	resp := gin.H{"success": true}
	if result.Message != "" {
		resp["message"] = result.Message
	}
	for k, v := range result.Data {
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}

// Run starts the API server and blocks until it stops
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", "addr", addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes websocket clients and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopEvents()
	<-s.eventsDone
	s.closeClients()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
