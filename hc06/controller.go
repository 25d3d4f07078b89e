package hc06

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/hc06ctl/debounce"
)

// Status is a snapshot of the controller for display.
type Status struct {
	State    ConnectionState         `json:"state"`
	Port     string                  `json:"port,omitempty"`
	Identity PortIdentity            `json:"identity"`
	Settings DeviceConfig            `json:"settings"`
	Version  string                  `json:"version,omitempty"`
	Writes   map[Property]WriteState `json:"writes"`
}

// Controller is the facade a UI drives. It serializes user operations on a
// Session, records confirmed changes in the settings store, tracks the write
// state of every property and publishes it on the Session's event bus.
type Controller struct {
	session  *Session
	store    SettingsStore
	provider Provider
	config   Config
	log      *slog.Logger
	bus      *EventBus

	// ops serializes user operations; the device takes one command at a time.
	ops sync.Mutex

	// mu guards the fields below.
	mu        sync.Mutex
	settings  DeviceConfig
	version   string
	writes    map[Property]WriteState
	lastID    PortIdentity
	keepAlive context.CancelFunc

	nameWriter *debounce.Debouncer
	pinWriter  *debounce.Debouncer
}

// NewController wires a Controller to session. provider may be nil when the
// caller always passes a Dialer to Connect.
func NewController(session *Session, store SettingsStore, provider Provider, config Config) *Controller {
	config.setDefaults()
	c := &Controller{
		session:    session,
		store:      store,
		provider:   provider,
		config:     config,
		log:        config.Logger.With("component", "controller"),
		bus:        session.Events(),
		settings:   DefaultDeviceConfig(),
		writes:     make(map[Property]WriteState, len(Properties)),
		nameWriter: debounce.New(config.DebounceDelay),
		pinWriter:  debounce.New(config.DebounceDelay),
	}
	for _, p := range Properties {
		c.writes[p] = WriteUnwritten
	}
	session.OnClose(c.sessionClosed)
	return c
}

// Start loads the stored device settings, creating defaults on first run.
func (c *Controller) Start(ctx context.Context) error {
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	c.mu.Lock()
	c.settings = cfg
	c.mu.Unlock()
	c.log.Info("Loaded device settings",
		"baud", int(cfg.BaudRate),
		"parity", string(cfg.Parity),
		"name", cfg.Name,
		"role", string(cfg.Role))
	return nil
}

// Settings returns the last confirmed device configuration.
func (c *Controller) Settings() DeviceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Session returns the underlying session.
func (c *Controller) Session() *Session {
	return c.session
}

// Status returns a snapshot for display.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	writes := make(map[Property]WriteState, len(c.writes))
	for p, w := range c.writes {
		writes[p] = w
	}
	st := Status{
		State:    c.session.State(),
		Identity: c.session.Identity(),
		Settings: c.settings,
		Version:  c.version,
		Writes:   writes,
	}
	if d := c.session.Dialer(); d != nil {
		st.Port = d.Name()
	}
	return st
}

// WriteState returns the state of the last write of p.
func (c *Controller) WriteState(p Property) WriteState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[p]
}

// ToggleConnect closes the session if it holds a port or is in an error
// state, and otherwise selects a port and connects.
func (c *Controller) ToggleConnect(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if c.session.State() != StateClosed {
		return c.session.Close()
	}
	d, err := c.selectPort(ctx)
	if err != nil {
		return err
	}
	return c.connect(ctx, d)
}

// Connect opens d with the stored link parameters. A nil d selects a port as
// ToggleConnect does.
func (c *Controller) Connect(ctx context.Context, d Dialer) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if d == nil {
		var err error
		if d, err = c.selectPort(ctx); err != nil {
			return err
		}
	}
	return c.connect(ctx, d)
}

// Disconnect closes the session. It does not wait for a running operation:
// a connect or write in progress fails with ErrPortClosed.
func (c *Controller) Disconnect() error {
	return c.session.Close()
}

// Close cancels scheduled writes, stops the keepalive and closes the session.
func (c *Controller) Close() error {
	c.nameWriter.Cancel()
	c.pinWriter.Cancel()
	c.stopKeepAlive()
	return c.Disconnect()
}

// selectPort prefers a configured port, then the port last connected to,
// then any known port, then asks the provider.
func (c *Controller) selectPort(ctx context.Context) (Dialer, error) {
	if c.provider == nil {
		return nil, ErrNoPort
	}
	if pp, ok := c.provider.(PreferredProvider); ok {
		d, err := pp.Preferred(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}

	known, err := c.provider.Known(ctx)
	if err != nil {
		c.log.Warn("Listing known ports failed", "error", err)
	}
	c.mu.Lock()
	last := c.lastID
	c.mu.Unlock()

	if !last.IsZero() {
		for _, d := range known {
			if d.Identity() == last {
				return d, nil
			}
		}
	}
	if len(known) > 0 {
		return known[0], nil
	}

	d, err := c.provider.Request(ctx)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNoPort
	}
	return d, nil
}

func (c *Controller) connect(ctx context.Context, d Dialer) error {
	if err := c.session.Open(ctx, d, c.Settings().Link()); err != nil {
		return err
	}
	c.connected(ctx)
	return nil
}

// connected runs after every successful open.
func (c *Controller) connected(ctx context.Context) {
	c.mu.Lock()
	c.lastID = c.session.Identity()
	c.mu.Unlock()
	c.startKeepAlive()

	if err := c.settle(ctx); err != nil {
		return
	}
	version, err := c.session.Version(ctx)
	if err != nil {
		c.log.Warn("Reading firmware version failed", "error", err)
		return
	}
	c.mu.Lock()
	c.version = version
	c.mu.Unlock()
	c.log.Info("Firmware version", "version", version)
}

// reopen restores the link with params after a baud or parity change. The
// device already runs at the new parameters, so the reopen completes even if
// ctx ends; the command timeout still bounds the verification ping.
func (c *Controller) reopen(ctx context.Context, params LinkParams) error {
	ctx = context.WithoutCancel(ctx)
	if err := c.settle(ctx); err != nil {
		return err
	}
	if err := c.session.Reopen(ctx, nil, params); err != nil {
		return fmt.Errorf("reopen port: %w", err)
	}
	c.connected(ctx)
	return nil
}

// settle waits the device command interval.
func (c *Controller) settle(ctx context.Context) error {
	t := time.NewTimer(c.config.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetBaud changes the device baud rate, records it and reopens the port at
// the new rate. On failure nothing is recorded and the port is not reopened.
func (c *Controller) SetBaud(ctx context.Context, b Baud) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if _, err := b.Code(); err != nil {
		return err
	}
	next, err := c.write(ctx, PropertyBaud, func(ctx context.Context) error {
		return c.session.SetBaud(ctx, b)
	}, func(cfg *DeviceConfig) { cfg.BaudRate = b })
	if err != nil {
		return err
	}
	return c.reopen(ctx, next.Link())
}

// SetParity changes the device parity, records it and reopens the port.
func (c *Controller) SetParity(ctx context.Context, p Parity) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if _, err := p.Code(); err != nil {
		return err
	}
	next, err := c.write(ctx, PropertyParity, func(ctx context.Context) error {
		return c.session.SetParity(ctx, p)
	}, func(cfg *DeviceConfig) { cfg.Parity = p })
	if err != nil {
		return err
	}
	return c.reopen(ctx, next.Link())
}

func (c *Controller) SetRole(ctx context.Context, r Role) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if _, err := r.Code(); err != nil {
		return err
	}
	_, err := c.write(ctx, PropertyRole, func(ctx context.Context) error {
		return c.session.SetRole(ctx, r)
	}, func(cfg *DeviceConfig) { cfg.Role = r })
	return err
}

func (c *Controller) SetName(ctx context.Context, name string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := c.write(ctx, PropertyName, func(ctx context.Context) error {
		return c.session.SetName(ctx, name)
	}, func(cfg *DeviceConfig) { cfg.Name = name })
	return err
}

func (c *Controller) SetPIN(ctx context.Context, pin string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if err := ValidatePIN(pin); err != nil {
		return err
	}
	_, err := c.write(ctx, PropertyPIN, func(ctx context.Context) error {
		return c.session.SetPIN(ctx, pin)
	}, func(cfg *DeviceConfig) { cfg.PIN = pin })
	return err
}

// ScheduleName writes name once no other ScheduleName call has happened for
// the debounce delay. Only the last name is sent.
func (c *Controller) ScheduleName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	c.nameWriter.Trigger(func() {
		if err := c.SetName(context.Background(), name); err != nil {
			c.log.Warn("Scheduled name write failed", "name", name, "error", err)
		}
	})
	return nil
}

// SchedulePIN is the debounced form of SetPIN.
func (c *Controller) SchedulePIN(pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}
	c.pinWriter.Trigger(func() {
		if err := c.SetPIN(context.Background(), pin); err != nil {
			c.log.Warn("Scheduled PIN write failed", "error", err)
		}
	})
	return nil
}

// FlushScheduled sends scheduled name and PIN writes now.
func (c *Controller) FlushScheduled() {
	c.nameWriter.Flush()
	c.pinWriter.Flush()
}

// write sends one property change. Only after the device confirms it is the
// field saved, so the store never holds a value the device rejected.
func (c *Controller) write(ctx context.Context, p Property, send func(context.Context) error, apply func(*DeviceConfig)) (DeviceConfig, error) {
	c.setWrite(p, WriteWriting, nil)

	if err := send(ctx); err != nil {
		if errors.Is(err, ErrPortClosed) {
			// The close hook resets write states; this may run after it.
			c.setWrite(p, WriteUnwritten, nil)
			return DeviceConfig{}, err
		}
		c.log.Warn("Device write failed", "property", string(p), "error", err)
		c.setWrite(p, WriteError, err)
		return DeviceConfig{}, err
	}

	c.mu.Lock()
	next := c.settings
	c.mu.Unlock()
	apply(&next)

	if err := c.store.Save(ctx, next); err != nil {
		err = fmt.Errorf("save settings: %w", err)
		c.log.Error("Saving settings failed", "property", string(p), "error", err)
		c.setWrite(p, WriteError, err)
		return DeviceConfig{}, err
	}

	c.mu.Lock()
	c.settings = next
	c.mu.Unlock()
	c.setWrite(p, WriteSuccess, nil)
	c.log.Info("Device setting changed", "property", string(p))
	return next, nil
}

func (c *Controller) setWrite(p Property, w WriteState, cause error) {
	c.mu.Lock()
	c.writes[p] = w
	c.mu.Unlock()
	c.bus.Publish(Event{Type: EventWriteState, Property: p, WriteState: w, Err: cause})
}

// sessionClosed runs on every close, user initiated or not.
func (c *Controller) sessionClosed(cause error) {
	c.nameWriter.Cancel()
	c.pinWriter.Cancel()
	c.stopKeepAlive()

	c.mu.Lock()
	c.version = ""
	c.mu.Unlock()
	for _, p := range Properties {
		c.setWrite(p, WriteUnwritten, nil)
	}
}

func (c *Controller) startKeepAlive() {
	if c.config.KeepAlive <= 0 {
		return
	}
	c.stopKeepAlive()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.keepAlive = cancel
	c.mu.Unlock()
	go c.keepAliveLoop(ctx)
}

func (c *Controller) stopKeepAlive() {
	c.mu.Lock()
	cancel := c.keepAlive
	c.keepAlive = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// keepAliveLoop pings the device periodically and closes the session when it
// stops answering. Ticks during a user operation are skipped.
func (c *Controller) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.ops.TryLock() {
				continue
			}
			if !c.session.IsOpen() {
				c.ops.Unlock()
				continue
			}
			ok, err := c.session.Ping(ctx)
			if err == nil && !ok {
				err = errors.New("unexpected ping response")
			}
			if err != nil && ctx.Err() == nil {
				c.log.Warn("Keepalive ping failed, closing port", "error", err)
				if cerr := c.session.Close(); cerr != nil {
					c.log.Warn("Close after keepalive failure failed", "error", cerr)
				}
			}
			c.ops.Unlock()
		}
	}
}
