package session

import (
	"errors"
	"fmt"

	"github.com/thereceipt/bill-printer/internal/registry"
)

var (
	ErrNoPrinterConnected  = errors.New("session: no printer connected")
	ErrConnectSuperseded   = errors.New("session: connect attempt superseded by a newer request")
	ErrDiscoverySuperseded = errors.New("session: discovery pass superseded by a newer one")
)

// DiscoveryError is returned when the transport cannot list devices
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("session: discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ConnectionError is returned when a device cannot be reached
type ConnectionError struct {
	Device registry.Device
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect to %s (%s) failed: %v", e.Device.DisplayName(), e.Device.ID(), e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PersistenceError is logged when the default printer cannot be saved. It
// never changes the connection state.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: save %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
