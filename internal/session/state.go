package session

import (
	"time"

	"github.com/thereceipt/bill-printer/internal/registry"
)

// Status is the connection state of a session
type Status int

const (
	StatusDisconnected Status = iota
	StatusDiscovering
	StatusConnecting
	StatusConnected
	StatusConnectFailed
)

var statusNames = map[Status]string{
	StatusDisconnected:  "disconnected",
	StatusDiscovering:   "discovering",
	StatusConnecting:    "connecting",
	StatusConnected:     "connected",
	StatusConnectFailed: "connect_failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a snapshot of the session. Device is the connected device, or the
// device being connected to while Connecting.
type State struct {
	Status      Status           `json:"status"`
	Device      *registry.Device `json:"device,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Discovering bool             `json:"discovering"`
}

// Level grades a notice
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is a human readable outcome of a session operation
type Notice struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// EventType names a session event
type EventType string

const (
	EventState         EventType = "state"
	EventNotice        EventType = "notice"
	EventDevices       EventType = "devices"
	EventDeviceAdded   EventType = "device_added"
	EventDeviceRemoved EventType = "device_removed"
)

// Event is published to subscribers on every state change and notice
type Event struct {
	Type    EventType         `json:"type"`
	State   *State            `json:"state,omitempty"`
	Notice  *Notice           `json:"notice,omitempty"`
	Devices []registry.Device `json:"devices,omitempty"`
	Device  *registry.Device  `json:"device,omitempty"`
	Time    time.Time         `json:"time"`
}
