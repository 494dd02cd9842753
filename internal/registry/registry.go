// Package registry holds the printers found by the latest discovery pass
package registry

import (
	"fmt"
	"sync"
)

// UnknownName is shown for devices that do not report a name
const UnknownName = "Unknown Device"

// Device is a printer that can be selected. Bluetooth printers are addressed
// by MacAddress, network printers by IP and Port.
type Device struct {
	DeviceName string `json:"deviceName,omitempty"`
	MacAddress string `json:"macAddress,omitempty"`
	IP         string `json:"ip,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// ID returns the identifier that is unique within a session
func (d Device) ID() string {
	if d.MacAddress != "" {
		return d.MacAddress
	}
	if d.IP != "" {
		return fmt.Sprintf("%s:%d", d.IP, d.Port)
	}
	return ""
}

// DisplayName returns the device name or UnknownName
func (d Device) DisplayName() string {
	if d.DeviceName == "" {
		return UnknownName
	}
	return d.DeviceName
}

// Kind reports how the device is reached: bluetooth or network
func (d Device) Kind() string {
	if d.MacAddress == "" && d.IP != "" {
		return "network"
	}
	return "bluetooth"
}

// Same reports whether d and other identify the same printer
func (d Device) Same(other Device) bool {
	return d.ID() != "" && d.ID() == other.ID()
}

// Registry is the set of discovered candidate printers
type Registry struct {
	devices []Device
	byID    map[string]int
	mu      sync.RWMutex
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		byID: make(map[string]int),
	}
}

// Replace swaps the whole device set for the result of a discovery pass.
// Devices without an identifier are dropped; a repeated identifier keeps the
// first entry.
func (r *Registry) Replace(devices []Device) {
	next := make([]Device, 0, len(devices))
	index := make(map[string]int, len(devices))
	for _, d := range devices {
		id := d.ID()
		if id == "" {
			continue
		}
		if _, exists := index[id]; exists {
			continue
		}
		index[id] = len(next)
		next = append(next, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = next
	r.byID = index
}

// Get returns a device by identifier
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return Device{}, false
	}
	return r.devices[i], true
}

// All returns a copy of the devices in discovery order
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// Len returns the number of devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.devices)
}
