// Package printer discovers thermal printers and delivers payloads to them
// over Bluetooth or TCP
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thereceipt/bill-printer/internal/registry"
)

var (
	ErrNoDevicesFound = errors.New("printer: no paired Bluetooth devices found")
	ErrRadioOff       = errors.New("printer: Bluetooth adapter is powered off")
	ErrNotSupported   = errors.New("printer: operation not supported on this platform")
	ErrMissingAddress = errors.New("printer: target has neither a MAC address nor an IP")
)

// Config holds the job settings sent with every payload
type Config struct {
	IP           string        `yaml:"ip" json:"ip"`
	Port         int           `yaml:"port" json:"port"`
	AutoCut      bool          `yaml:"auto_cut" json:"autoCut"`
	OpenCashbox  bool          `yaml:"open_cashbox" json:"openCashbox"`
	FeedMM       int           `yaml:"feed_mm" json:"feedMM"`
	DPI          int           `yaml:"dpi" json:"dpi"`
	WidthMM      int           `yaml:"width_mm" json:"widthMM"`
	CharsPerLine int           `yaml:"chars_per_line" json:"charsPerLine"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		IP:           "192.168.0.100",
		Port:         9100,
		AutoCut:      true,
		OpenCashbox:  false,
		FeedMM:       5,
		DPI:          203,
		WidthMM:      80,
		CharsPerLine: 42,
		Timeout:      30 * time.Second,
	}
}

// Target is one connect-and-send request. Bluetooth targets set MacAddress,
// network targets set IP and Port; both share the payload format.
type Target struct {
	MacAddress   string
	IP           string
	Port         int
	Payload      string
	AutoCut      bool
	OpenCashbox  bool
	FeedMM       int
	DPI          int
	WidthMM      int
	CharsPerLine int
	Timeout      time.Duration
}

// NewTarget addresses payload to device using the job settings in cfg
func NewTarget(device registry.Device, payload string, cfg Config) Target {
	t := Target{
		MacAddress:   device.MacAddress,
		Payload:      payload,
		AutoCut:      cfg.AutoCut,
		OpenCashbox:  cfg.OpenCashbox,
		FeedMM:       cfg.FeedMM,
		DPI:          cfg.DPI,
		WidthMM:      cfg.WidthMM,
		CharsPerLine: cfg.CharsPerLine,
		Timeout:      cfg.Timeout,
	}

	if device.MacAddress == "" {
		t.IP = device.IP
		t.Port = device.Port
		if t.IP == "" {
			t.IP = cfg.IP
		}
		if t.Port == 0 {
			t.Port = cfg.Port
		}
	}

	return t
}

// Network reports whether the target is sent over TCP
func (t Target) Network() bool {
	return t.MacAddress == "" && t.IP != ""
}

// Transport reaches printers over Bluetooth serial links and raw TCP
type Transport struct {
	cfg             Config
	networkPrinters []registry.Device
	scanSubnet      bool
	logger          *log.Logger

	listBluetooth func(ctx context.Context) ([]registry.Device, error)
	openBluetooth func(ctx context.Context, mac string) (io.WriteCloser, error)
}

// Option configures a Transport
type Option func(*Transport)

// WithNetworkPrinters adds fixed TCP printers to every discovery pass
func WithNetworkPrinters(devices ...registry.Device) Option {
	return func(t *Transport) {
		t.networkPrinters = append(t.networkPrinters, devices...)
	}
}

// WithSubnetScan probes the local /24 on the configured port during discovery
func WithSubnetScan(enabled bool) Option {
	return func(t *Transport) {
		t.scanSubnet = enabled
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a transport using the platform Bluetooth backend
func NewTransport(cfg Config, opts ...Option) *Transport {
	t := &Transport{
		cfg:           cfg,
		logger:        log.Default(),
		listBluetooth: listPairedDevices,
		openBluetooth: openBluetoothLink,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithPrefix("transport")
	return t
}

// Config returns the job settings of the transport
func (t *Transport) Config() Config {
	return t.cfg
}

// Discover lists paired Bluetooth printers plus known network printers.
// Bluetooth failure is only an error when no network printer was found.
func (t *Transport) Discover(ctx context.Context) ([]registry.Device, error) {
	var devices []registry.Device

	bt, btErr := t.listBluetooth(ctx)
	if btErr == nil {
		devices = append(devices, bt...)
	}

	network := append([]registry.Device(nil), t.networkPrinters...)
	if t.scanSubnet {
		found, err := t.scanNetwork(ctx)
		if err != nil {
			t.logger.Warn("subnet scan failed", "err", err)
		}
		network = append(network, found...)
	}
	devices = append(devices, network...)

	if btErr != nil {
		if len(network) == 0 {
			return nil, btErr
		}
		t.logger.Warn("bluetooth discovery failed", "err", btErr)
	}

	t.logger.Debug("discovery finished", "bluetooth", len(bt), "network", len(network))
	return devices, nil
}

// Connect checks that device is reachable without sending anything
func (t *Transport) Connect(ctx context.Context, device registry.Device) error {
	target := NewTarget(device, "", t.cfg)

	switch {
	case target.Network():
		conn, err := ConnectNetwork(ctx, target.IP, target.Port, t.cfg.Timeout)
		if err != nil {
			return err
		}
		return conn.Close()
	case target.MacAddress != "":
		link, err := t.openBluetooth(ctx, target.MacAddress)
		if err != nil {
			return err
		}
		return link.Close()
	default:
		return ErrMissingAddress
	}
}

// Send encodes the payload and writes it to the target over a fresh link
func (t *Transport) Send(ctx context.Context, target Target) error {
	data, err := EncodePayload(target)
	if err != nil {
		return err
	}

	var link io.WriteCloser
	switch {
	case target.Network():
		link, err = ConnectNetwork(ctx, target.IP, target.Port, target.Timeout)
	case target.MacAddress != "":
		link, err = t.openBluetooth(ctx, target.MacAddress)
	default:
		return ErrMissingAddress
	}
	if err != nil {
		return err
	}
	defer link.Close()

	if _, err := link.Write(data); err != nil {
		return fmt.Errorf("failed to write to printer: %w", err)
	}

	t.logger.Info("payload sent", "bytes", len(data), "network", target.Network())
	return nil
}

func (t *Transport) scanNetwork(ctx context.Context) ([]registry.Device, error) {
	subnet, err := DetectLocalSubnet()
	if err != nil {
		return nil, err
	}

	var devices []registry.Device
	for _, ip := range ScanSubnet(ctx, subnet, t.cfg.Port, 50) {
		devices = append(devices, registry.Device{
			DeviceName: fmt.Sprintf("Network: %s:%d", ip, t.cfg.Port),
			IP:         ip,
			Port:       t.cfg.Port,
		})
	}
	return devices, nil
}
