// Package connector adapts the record store to the host's storage-plugin
// contract: callback-style get/set/delete, plus ready, error and close
// signals delivered on an event channel.
package connector

import (
	"log/slog"
	"sync"

	"github.com/roach88/filemock/internal/config"
	"github.com/roach88/filemock/internal/record"
	"github.com/roach88/filemock/internal/store"
)

// EventKind names a lifecycle signal.
type EventKind string

const (
	// EventReady fires once the persistence file has been loaded.
	EventReady EventKind = "ready"

	// EventError fires when the load or the save fails.
	EventError EventKind = "error"

	// EventClose fires once shutdown has completed.
	EventClose EventKind = "close"
)

// Event is a lifecycle signal. Err is set for EventError.
type Event struct {
	Kind EventKind
	Err  error
}

// eventBuffer fits every event a connector can emit: one load event
// (ready or error) and one close event (close or error).
const eventBuffer = 2

// Connector is the host-facing storage plugin.
type Connector struct {
	name    string
	version string
	store   *store.Store
	logger  *slog.Logger

	events        chan Event
	loadForwarded chan struct{}
	closeOnce     sync.Once
	done          chan struct{}
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger used by the connector and its store.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New opens the store described by cfg and starts forwarding its lifecycle
// to Events(). Name and version come from cfg.
func New(cfg config.Config, opts ...Option) *Connector {
	cfg = cfg.WithInstanceID()

	c := &Connector{
		name:          cfg.Name,
		version:       cfg.Version,
		logger:        slog.Default(),
		events:        make(chan Event, eventBuffer),
		loadForwarded: make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = store.Open(cfg, store.WithLogger(c.logger))
	c.logger = c.logger.With("connector", cfg.Name, "instance", cfg.InstanceID)

	go c.forwardLoad()
	return c
}

func (c *Connector) forwardLoad() {
	defer close(c.loadForwarded)

	loaded := c.store.Loaded()
	<-loaded.Done()
	if err := loaded.Err(); err != nil {
		c.events <- Event{Kind: EventError, Err: err}
		return
	}
	c.events <- Event{Kind: EventReady}
}

// Name returns the configured connector name.
func (c *Connector) Name() string {
	return c.name
}

// Version returns the configured connector version.
func (c *Connector) Version() string {
	return c.version
}

// IsReady reports whether the initial load succeeded.
func (c *Connector) IsReady() bool {
	return c.store.Ready()
}

// Events returns the lifecycle channel. ready and close are each delivered at
// most once, and error at most once per phase (load, save). The channel is
// closed after the final event.
func (c *Connector) Events() <-chan Event {
	return c.events
}

// Set writes value under key. callback receives nil on success.
func (c *Connector) Set(key string, value record.Wire, callback func(error)) {
	callback(c.store.Set(key, value))
}

// Get reads key. callback receives (nil, nil) when the key is absent.
func (c *Connector) Get(key string, callback func(error, *record.Wire)) {
	w, err := c.store.Get(key)
	callback(err, w)
}

// Delete removes key. callback receives nil on success, including when the
// key did not exist.
func (c *Connector) Delete(key string, callback func(error)) {
	callback(c.store.Delete(key))
}

// Close shuts the store down. The outcome arrives on Events(): close on
// success, error if the save failed. Later calls are ignored.
func (c *Connector) Close() {
	c.closeOnce.Do(func() {
		go c.forwardClose()
	})
}

func (c *Connector) forwardClose() {
	closed := c.store.Close()
	<-closed.Done()

	// The load event always precedes the close event.
	<-c.loadForwarded

	if err := closed.Err(); err != nil {
		c.logger.Error("close failed", "error", err)
		c.events <- Event{Kind: EventError, Err: err}
	} else {
		c.events <- Event{Kind: EventClose}
	}
	close(c.events)
	close(c.done)
}

// Done is closed once the final event has been sent.
func (c *Connector) Done() <-chan struct{} {
	return c.done
}
