package printer

import (
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// BluetoothConnection is a serial port profile link to a Bluetooth printer
type BluetoothConnection struct {
	DevicePath string
	MAC        string
	port       *serial.Port
	release    func() error
	mu         sync.Mutex
}

// openSerial opens the serial device behind a Bluetooth link
func openSerial(devicePath, mac string, baud int, release func() error) (io.WriteCloser, error) {
	if baud == 0 {
		baud = 9600 // Default baud rate for most thermal printers
	}

	port, err := serial.OpenPort(&serial.Config{
		Name: devicePath,
		Baud: baud,
	})
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("failed to open %s for %s: %w", devicePath, mac, err)
	}

	return &BluetoothConnection{
		DevicePath: devicePath,
		MAC:        mac,
		port:       port,
		release:    release,
	}, nil
}

// Write sends data to the printer
func (c *BluetoothConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.port.Write(data)
}

// Close closes the port and tears down the link
func (c *BluetoothConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.port != nil {
		err = c.port.Close()
		c.port = nil
	}
	if c.release != nil {
		if rerr := c.release(); err == nil {
			err = rerr
		}
		c.release = nil
	}
	return err
}
