package printer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/thereceipt/bill-printer/internal/registry"
)

type bufferLink struct {
	bytes.Buffer
	closed bool
}

func (b *bufferLink) Close() error {
	b.closed = true
	return nil
}

func fakeBluetooth(t *Transport, devices []registry.Device, listErr error, link *bufferLink) {
	t.listBluetooth = func(ctx context.Context) ([]registry.Device, error) {
		return devices, listErr
	}
	t.openBluetooth = func(ctx context.Context, mac string) (io.WriteCloser, error) {
		if link == nil {
			return nil, errors.New("unreachable")
		}
		return link, nil
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.IP != "192.168.0.100" || cfg.Port != 9100 {
		t.Errorf("Unexpected default address %s:%d", cfg.IP, cfg.Port)
	}
	if !cfg.AutoCut || cfg.OpenCashbox {
		t.Error("Expected auto cut on and cash box off by default")
	}
	if cfg.FeedMM != 5 || cfg.DPI != 203 || cfg.WidthMM != 80 || cfg.CharsPerLine != 42 {
		t.Errorf("Unexpected default job settings: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.Timeout)
	}
}

func TestNewTarget_SelectsVariant(t *testing.T) {
	cfg := DefaultConfig()

	bt := NewTarget(registry.Device{MacAddress: "AA:BB"}, "x", cfg)
	if bt.Network() {
		t.Error("Expected Bluetooth target for MAC device")
	}
	if bt.DPI != 203 || bt.CharsPerLine != 42 || bt.Payload != "x" {
		t.Errorf("Unexpected Bluetooth target: %+v", bt)
	}

	tcp := NewTarget(registry.Device{IP: "10.0.0.9"}, "x", cfg)
	if !tcp.Network() {
		t.Error("Expected network target for IP device")
	}
	if tcp.Port != 9100 {
		t.Errorf("Expected default port 9100, got %d", tcp.Port)
	}
}

func TestDiscover_MergesNetworkPrinters(t *testing.T) {
	tr := NewTransport(DefaultConfig(), WithNetworkPrinters(registry.Device{DeviceName: "Bar", IP: "10.0.0.2", Port: 9100}))
	fakeBluetooth(tr, []registry.Device{{DeviceName: "PT-210", MacAddress: "AA"}}, nil, nil)

	devices, err := tr.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[0].MacAddress != "AA" || devices[1].IP != "10.0.0.2" {
		t.Errorf("Unexpected devices: %+v", devices)
	}
}

func TestDiscover_BluetoothFailure(t *testing.T) {
	tr := NewTransport(DefaultConfig())
	fakeBluetooth(tr, nil, ErrRadioOff, nil)

	if _, err := tr.Discover(context.Background()); !errors.Is(err, ErrRadioOff) {
		t.Errorf("Expected ErrRadioOff, got %v", err)
	}

	// With a network printer configured the Bluetooth failure is tolerated
	tr = NewTransport(DefaultConfig(), WithNetworkPrinters(registry.Device{IP: "10.0.0.2", Port: 9100}))
	fakeBluetooth(tr, nil, ErrRadioOff, nil)

	devices, err := tr.Discover(context.Background())
	if err != nil || len(devices) != 1 {
		t.Errorf("Expected only the network printer, got %v (%v)", devices, err)
	}
}

func TestSend_Bluetooth(t *testing.T) {
	link := &bufferLink{}
	tr := NewTransport(DefaultConfig())
	fakeBluetooth(tr, nil, nil, link)

	target := NewTarget(registry.Device{MacAddress: "AA"}, "[L]hello", tr.Config())
	if err := tr.Send(context.Background(), target); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !bytes.Contains(link.Bytes(), []byte("hello")) {
		t.Errorf("Expected payload text on the link, got %q", link.Bytes())
	}
	if !link.closed {
		t.Error("Expected link to be closed after send")
	}
}

func TestSend_MissingAddress(t *testing.T) {
	tr := NewTransport(DefaultConfig())
	if err := tr.Send(context.Background(), Target{Payload: "x"}); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Expected ErrMissingAddress, got %v", err)
	}
}

func TestSendAndConnect_Network(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			conn.Close()
			received <- data
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	device := registry.Device{IP: "127.0.0.1", Port: addr.Port}

	tr := NewTransport(DefaultConfig())
	if err := tr.Connect(context.Background(), device); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-received

	target := NewTarget(device, "[L]<b>TOTAL</b>", tr.Config())
	if err := tr.Send(context.Background(), target); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-received:
		if !bytes.Contains(data, []byte("TOTAL")) {
			t.Errorf("Expected payload on the wire, got %q", data)
		}
		if !bytes.HasSuffix(data, []byte{GS, 'V', 1}) {
			t.Errorf("Expected trailing cut command, got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for payload")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	tr := NewTransport(cfg)

	if err := tr.Connect(context.Background(), registry.Device{IP: "127.0.0.1", Port: port}); err == nil {
		t.Error("Expected error connecting to a closed port")
	}
}
