package session

import (
	"context"
	"errors"
	"time"

	"github.com/thereceipt/bill-printer/internal/registry"
)

// Monitor runs discovery on an interval and publishes devices that appear
// or disappear between passes
type Monitor struct {
	session  *Session
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a monitor for s
func NewMonitor(s *Session, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		session:  s,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins monitoring. The current device list is the baseline.
func (m *Monitor) Start() {
	m.StartAfter(nil)
}

// StartAfter begins monitoring once ready is closed, taking the device list
// at that point as the baseline. A nil ready starts at once.
func (m *Monitor) StartAfter(ready <-chan struct{}) {
	go func() {
		defer close(m.done)

		if ready != nil {
			select {
			case <-m.ctx.Done():
				return
			case <-ready:
			}
		}
		previous := indexDevices(m.session.Devices())

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		failing := false
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				previous, failing = m.checkChanges(previous, failing)
			}
		}
	}()
}

// Stop stops the monitor and waits for an in-flight pass to return
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

// checkChanges runs one quiet discovery pass. A failure is logged when it
// first occurs and again only after a pass has succeeded.
func (m *Monitor) checkChanges(previous map[string]registry.Device, failing bool) (map[string]registry.Device, bool) {
	devices, err := m.session.discover(m.ctx, false)
	if err != nil {
		if errors.Is(err, ErrDiscoverySuperseded) || m.ctx.Err() != nil {
			return previous, failing
		}
		if !failing {
			m.session.logger.Warn("monitor discovery failed", "err", err)
		}
		return previous, true
	}
	if failing {
		m.session.logger.Info("monitor discovery recovered")
	}

	current := indexDevices(devices)
	for id, d := range current {
		if _, exists := previous[id]; !exists {
			m.session.logger.Info("printer added", "device", d.DisplayName(), "id", id)
			added := d
			m.session.publish(Event{Type: EventDeviceAdded, Device: &added})
		}
	}
	for id, d := range previous {
		if _, exists := current[id]; !exists {
			m.session.logger.Info("printer removed", "device", d.DisplayName(), "id", id)
			removed := d
			m.session.publish(Event{Type: EventDeviceRemoved, Device: &removed})
		}
	}
	return current, false
}

func indexDevices(devices []registry.Device) map[string]registry.Device {
	index := make(map[string]registry.Device, len(devices))
	for _, d := range devices {
		index[d.ID()] = d
	}
	return index
}
