// Package session owns the printer connection lifecycle: discovery, the
// active and default printer, and delivering payloads to whichever of the
// two is available.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thereceipt/bill-printer/internal/kvstore"
	"github.com/thereceipt/bill-printer/internal/printer"
	"github.com/thereceipt/bill-printer/internal/registry"
	"github.com/thereceipt/bill-printer/internal/renderer"
	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// DefaultPrinterKey is the store key holding the last connected device
const DefaultPrinterKey = "defaultPrinter"

const subscriberBuffer = 32

// Transport reaches physical printers. *printer.Transport implements it.
type Transport interface {
	Discover(ctx context.Context) ([]registry.Device, error)
	Connect(ctx context.Context, device registry.Device) error
	Send(ctx context.Context, target printer.Target) error
}

// Session tracks discovered devices and the active connection
type Session struct {
	transport Transport
	store     kvstore.Store
	devices   *registry.Registry
	cfg       printer.Config
	logger    *log.Logger

	mu            sync.RWMutex
	status        Status
	active        *registry.Device
	pending       *registry.Device
	def           *registry.Device
	reason        string
	discovering   bool
	connectSeq    uint64
	discoverSeq   uint64
	cancelConnect context.CancelFunc

	persistMu sync.Mutex
	bg        sync.WaitGroup

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger; the session logs under its own prefix
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithConfig sets the job settings sent with every payload
func WithConfig(cfg printer.Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// New creates a disconnected session
func New(transport Transport, store kvstore.Store, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		store:     store,
		devices:   registry.New(),
		cfg:       printer.DefaultConfig(),
		logger:    log.Default(),
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("session")
	return s
}

// Start loads the saved default printer and, if there is one, makes a single
// auto-connect attempt alongside an initial discovery pass. It returns when
// both have finished.
func (s *Session) Start(ctx context.Context) {
	def, err := s.loadDefault()
	if err != nil {
		s.logger.Error("failed to load default printer", "err", err)
	}

	var wg sync.WaitGroup
	if def != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("auto-connecting to default printer", "device", def.DisplayName(), "id", def.ID())
			if _, err := s.Connect(ctx, *def); err != nil {
				s.logger.Warn("auto-connect failed", "err", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.StartDiscovery(ctx); err != nil && !errors.Is(err, ErrDiscoverySuperseded) {
			s.logger.Warn("initial discovery failed", "err", err)
		}
	}()

	wg.Wait()
}

func (s *Session) loadDefault() (*registry.Device, error) {
	raw, ok, err := s.store.Get(DefaultPrinterKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", DefaultPrinterKey, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var device registry.Device
	if err := json.Unmarshal([]byte(raw), &device); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DefaultPrinterKey, err)
	}
	if device.ID() == "" {
		return nil, fmt.Errorf("decode %s: %w", DefaultPrinterKey, printer.ErrMissingAddress)
	}

	s.mu.Lock()
	s.def = &device
	s.mu.Unlock()
	s.logger.Info("loaded default printer", "device", device.DisplayName(), "id", device.ID())

	d := device
	return &d, nil
}

// StartDiscovery replaces the device list with the transport's current view.
// A failed pass leaves the list and the connection untouched. Only the most
// recent pass may update the list; older passes return ErrDiscoverySuperseded.
func (s *Session) StartDiscovery(ctx context.Context) ([]registry.Device, error) {
	return s.discover(ctx, true)
}

// discover runs one pass. With notify unset a failure is logged at debug
// level and no notice is published.
func (s *Session) discover(ctx context.Context, notify bool) ([]registry.Device, error) {
	s.mu.Lock()
	s.discoverSeq++
	seq := s.discoverSeq
	s.discovering = true
	s.mu.Unlock()
	s.publishState()

	found, err := s.transport.Discover(ctx)

	s.mu.Lock()
	if seq != s.discoverSeq {
		s.mu.Unlock()
		return nil, ErrDiscoverySuperseded
	}
	s.discovering = false
	if err == nil {
		s.devices.Replace(found)
	}
	s.mu.Unlock()
	s.publishState()

	if err != nil {
		derr := &DiscoveryError{Err: err}
		if !notify {
			s.logger.Debug("discovery failed", "err", err)
			return nil, derr
		}
		s.logger.Error("discovery failed", "err", err)
		s.publishNotice(Notice{
			Level:   LevelError,
			Title:   "Error",
			Message: "Failed to discover devices. Ensure Bluetooth is enabled.",
		})
		return nil, derr
	}

	devices := s.devices.All()
	s.logger.Info("discovery finished", "devices", len(devices))
	s.publish(Event{Type: EventDevices, Devices: devices})
	return devices, nil
}

// Connect makes device the active printer. Connecting to the device that is
// already active is reported as an info notice and drops any connect still in
// flight, so the active device stays. A newer Connect cancels this one, which
// then returns ErrConnectSuperseded and leaves the state to the newer attempt.
func (s *Session) Connect(ctx context.Context, device registry.Device) (Notice, error) {
	name := device.DisplayName()
	if device.ID() == "" {
		n := connectErrorNotice(name)
		return n, &ConnectionError{Device: device, Err: printer.ErrMissingAddress}
	}

	s.mu.Lock()
	if s.active != nil && s.active.Same(device) {
		// A connect to another device still in flight loses to this request.
		superseded := s.pending != nil
		if superseded {
			if s.cancelConnect != nil {
				s.cancelConnect()
				s.cancelConnect = nil
			}
			s.connectSeq++
			s.pending = nil
			s.status = StatusConnected
		}
		s.mu.Unlock()
		if superseded {
			s.logger.Debug("pending connect dropped for active device", "device", name)
			s.publishState()
		}
		n := Notice{
			Level:   LevelInfo,
			Title:   "Already Connected",
			Message: fmt.Sprintf("Device %s is already connected.", name),
		}
		s.publishNotice(n)
		return n, nil
	}

	if s.cancelConnect != nil {
		s.cancelConnect()
	}
	s.connectSeq++
	seq := s.connectSeq
	connectCtx, cancel := context.WithCancel(ctx)
	s.cancelConnect = cancel
	s.status = StatusConnecting
	pending := device
	s.pending = &pending
	s.mu.Unlock()
	s.publishState()

	s.logger.Info("connecting", "device", name, "id", device.ID(), "kind", device.Kind())
	err := s.transport.Connect(connectCtx, device)
	cancel()

	s.mu.Lock()
	if seq != s.connectSeq {
		s.mu.Unlock()
		s.logger.Debug("connect superseded", "device", name)
		return Notice{}, ErrConnectSuperseded
	}
	s.cancelConnect = nil
	s.pending = nil

	if err != nil {
		s.status = StatusDisconnected
		s.active = nil
		s.reason = err.Error()
		s.mu.Unlock()

		cerr := &ConnectionError{Device: device, Err: err}
		s.logger.Error("connect failed", "device", name, "err", err)
		s.publish(Event{Type: EventState, State: &State{
			Status: StatusConnectFailed,
			Device: &pending,
			Reason: err.Error(),
		}})
		n := connectErrorNotice(name)
		s.publishNotice(n)
		return n, cerr
	}

	connected := device
	s.active = &connected
	def := device
	s.def = &def
	s.status = StatusConnected
	s.reason = ""
	s.mu.Unlock()

	s.persistDefault(device)
	s.logger.Info("connected", "device", name, "id", device.ID())
	s.publishState()
	n := Notice{
		Level:   LevelSuccess,
		Title:   "Connected",
		Message: fmt.Sprintf("Connected to %s", name),
	}
	s.publishNotice(n)
	return n, nil
}

func connectErrorNotice(name string) Notice {
	return Notice{
		Level:   LevelError,
		Title:   "Connection Error",
		Message: fmt.Sprintf("Could not connect to %s. Ensure the printer is powered on and within range.", name),
	}
}

// persistDefault saves device in the background. A write is skipped when a
// later connect has already replaced the default.
func (s *Session) persistDefault(device registry.Device) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		s.persistMu.Lock()
		defer s.persistMu.Unlock()

		s.mu.RLock()
		current := s.def
		s.mu.RUnlock()
		if current == nil || !current.Same(device) {
			return
		}

		data, err := json.Marshal(device)
		if err == nil {
			err = s.store.Set(DefaultPrinterKey, string(data))
		}
		if err != nil {
			perr := &PersistenceError{Key: DefaultPrinterKey, Err: err}
			s.logger.Error("failed to save default printer", "err", perr)
			return
		}
		s.logger.Debug("saved default printer", "id", device.ID())
	}()
}

// Disconnect drops the active printer and cancels a pending connect. The
// default printer is kept.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	s.connectSeq++
	s.active = nil
	s.pending = nil
	s.reason = ""
	s.status = StatusDisconnected
	s.mu.Unlock()

	s.logger.Info("disconnected")
	s.publishState()
}

// Print sends payload to the active printer, falling back to the default
// printer when nothing is connected.
func (s *Session) Print(ctx context.Context, payload string) (Notice, error) {
	s.mu.RLock()
	var device *registry.Device
	switch {
	case s.active != nil:
		d := *s.active
		device = &d
	case s.def != nil:
		d := *s.def
		device = &d
	}
	cfg := s.cfg
	s.mu.RUnlock()

	if device == nil {
		n := Notice{Level: LevelError, Title: "Error", Message: "No printer connected."}
		s.publishNotice(n)
		return n, ErrNoPrinterConnected
	}

	target := printer.NewTarget(*device, payload, cfg)
	if err := s.transport.Send(ctx, target); err != nil {
		s.logger.Error("print failed", "device", device.DisplayName(), "err", err)
		n := Notice{Level: LevelError, Title: "Error", Message: "Failed to print. Check the printer connection."}
		s.publishNotice(n)
		return n, fmt.Errorf("print to %s: %w", device.ID(), err)
	}

	s.logger.Info("printed", "device", device.DisplayName(), "bytes", len(payload))
	n := Notice{Level: LevelSuccess, Title: "Success", Message: "Printed successfully."}
	s.publishNotice(n)
	return n, nil
}

// PrintJob renders job as of now and prints it. A render error aborts before
// anything is sent.
func (s *Session) PrintJob(ctx context.Context, job *receiptformat.Job, now time.Time) (Notice, error) {
	payload, err := renderer.Compose(job, now)
	if err != nil {
		return Notice{}, err
	}
	return s.Print(ctx, payload)
}

// State returns a snapshot of the connection state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		Status:      s.status,
		Reason:      s.reason,
		Discovering: s.discovering,
	}
	switch s.status {
	case StatusConnecting:
		if s.pending != nil {
			d := *s.pending
			st.Device = &d
		}
	case StatusConnected:
		if s.active != nil {
			d := *s.active
			st.Device = &d
		}
	}
	if s.discovering && s.status != StatusConnecting {
		st.Status = StatusDiscovering
	}
	return st
}

// Active returns the connected device, if any
func (s *Session) Active() (registry.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return registry.Device{}, false
	}
	return *s.active, true
}

// Default returns the device prints fall back to when nothing is connected
func (s *Session) Default() (registry.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.def == nil {
		return registry.Device{}, false
	}
	return *s.def, true
}

// Devices returns the result of the last successful discovery pass
func (s *Session) Devices() []registry.Device {
	return s.devices.All()
}

// Device looks up a discovered device by ID
func (s *Session) Device(id string) (registry.Device, bool) {
	return s.devices.Get(id)
}

// Config returns the job settings sent with every payload
func (s *Session) Config() printer.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe returns a channel of session events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) publishState() {
	st := s.State()
	s.publish(Event{Type: EventState, State: &st})
}

func (s *Session) publishNotice(n Notice) {
	s.publish(Event{Type: EventNotice, Notice: &n})
}

// Close waits for background writes and ends all subscriptions
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	s.mu.Unlock()

	s.bg.Wait()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
