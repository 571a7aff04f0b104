// Package bridge exposes discovered strips to Home Assistant as MQTT lights. It implements listener.Registrar: every
// registered strip gets a strip.Controller, a light component and a device discovery payload, and commands Home
// Assistant sends to the light are applied to the controller in order.
package bridge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nlowe/techlife"
	"github.com/nlowe/techlife/discovery"
	"github.com/nlowe/techlife/hass"
	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/mqtt"
	"github.com/nlowe/techlife/protocol"
	"github.com/nlowe/techlife/strip"
)

const (
	// DefaultTopicPrefix is the topic prefix light topics are published under when Options.TopicPrefix is empty.
	DefaultTopicPrefix = "techlife"

	// DefaultQueueSize is the number of Home Assistant commands buffered per strip when Options.QueueSize is zero.
	DefaultQueueSize = 16
)

var (
	// ErrClosed is the error returned by Host.Register after Host.Close.
	ErrClosed = errors.New("bridge closed")
	// ErrAlreadyStarted is the error returned by Host.Start if it was already called.
	ErrAlreadyStarted = errors.New("bridge already started")
)

// Options configures a Host.
type Options struct {
	// DiscoveryPrefix is the topic prefix Home Assistant reads discovery payloads from. Defaults to
	// discovery.DefaultPrefix.
	DiscoveryPrefix string

	// TopicPrefix is prepended to the state, command and availability topics of every light. Defaults to
	// DefaultTopicPrefix.
	TopicPrefix string

	// Origin is reported to Home Assistant in discovery payloads. Defaults to techlife.DefaultOrigin.
	Origin *techlife.Origin

	// StateParser decodes payloads strips publish about themselves. Defaults to protocol.NopStateParser.
	StateParser protocol.StateParser

	// QueueSize bounds the Home Assistant commands waiting to be applied to a single strip. Commands arriving while
	// the queue is full are dropped. Defaults to DefaultQueueSize.
	QueueSize int
}

// Host owns the controllers for every registered strip and their Home Assistant entities.
type Host struct {
	w mqtt.Writer
	s mqtt.Subscriber

	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	devices map[strip.ID]*device
	closed  bool
	hass    *mqtt.RemoteValue[hass.Availability]

	workers sync.WaitGroup

	log *slog.Logger
}

// New constructs a Host that publishes with w and subscribes with s.
func New(w mqtt.Writer, s mqtt.Subscriber, opts Options) *Host {
	opts.DiscoveryPrefix = cmp.Or(opts.DiscoveryPrefix, discovery.DefaultPrefix)
	opts.TopicPrefix = cmp.Or(opts.TopicPrefix, DefaultTopicPrefix)
	opts.QueueSize = cmp.Or(opts.QueueSize, DefaultQueueSize)
	if opts.StateParser == nil {
		opts.StateParser = protocol.NopStateParser
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Host{
		w:    w,
		s:    s,
		opts: opts,

		ctx:    ctx,
		cancel: cancel,

		devices: map[strip.ID]*device{},

		log: tllog.ForComponent("bridge"),
	}
}

// Register creates the controller and Home Assistant light for the strip identified by id, subscribes both and
// publishes discovery, availability and the initial state. Registering an id twice returns the existing controller.
func (h *Host) Register(ctx context.Context, id strip.ID) (*strip.Controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	if d, ok := h.devices[id]; ok {
		return d.controller, nil
	}

	d := h.newDevice(id)
	log := h.log.With(slog.String("device", string(id)), slog.String("unique_id", id.UniqueID()))

	if err := d.subscribe(ctx, h.s); err != nil {
		return nil, fmt.Errorf("bridge: register %s: %w", id, err)
	}

	if err := d.announce(ctx, h.w, h.opts.DiscoveryPrefix); err != nil {
		unsubscribeErr := d.unsubscribe(ctx, h.s)
		return nil, fmt.Errorf("bridge: register %s: %w", id, errors.Join(err, unsubscribeErr))
	}

	h.devices[id] = d

	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		d.run(h.ctx)
	}()

	log.Info("Registered light with Home Assistant")
	return d.controller, nil
}

// Controller returns the controller registered for id.
func (h *Host) Controller(id strip.ID) (*strip.Controller, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d, ok := h.devices[id]
	if !ok {
		return nil, false
	}

	return d.controller, true
}

// IDs returns the IDs of every registered strip in sorted order.
func (h *Host) IDs() []strip.ID {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]strip.ID, 0, len(h.devices))
	for id := range h.devices {
		result = append(result, id)
	}

	slices.Sort(result)
	return result
}

// Rediscover republishes discovery, availability and state for every registered strip. Home Assistant needs this after
// it restarts.
func (h *Host) Rediscover(ctx context.Context) error {
	h.mu.Lock()
	devices := make([]*device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	h.mu.Unlock()

	h.log.With(slog.Int("devices", len(devices))).Info("Re-sending discovery info")

	var err error
	for _, d := range devices {
		if dErr := d.announce(ctx, h.w, h.opts.DiscoveryPrefix); dErr != nil {
			err = errors.Join(err, fmt.Errorf("rediscover %s: %w", d.id, dErr))
		}
	}

	return err
}

// Start subscribes to Home Assistant's status topic and calls Rediscover whenever Home Assistant comes online.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hass != nil {
		return ErrAlreadyStarted
	}

	status := discovery.HomeAssistantAvailability(h.opts.DiscoveryPrefix)
	status.Watch(func(a hass.Availability) {
		h.log.With(slog.Any("availability", a)).Info("Home Assistant state changed")
		if a != hass.Available {
			return
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.workers.Add(1)
		h.mu.Unlock()

		go func() {
			defer h.workers.Done()

			if err := h.Rediscover(h.ctx); err != nil {
				h.log.With(tllog.Error(err)).Error("Failed to rediscover devices")
			}
		}()
	})

	if err := h.s.Subscribe(ctx, status, mqtt.Subscription{Topic: status.FullyQualifiedTopic("")}); err != nil {
		return fmt.Errorf("bridge: subscribe to home assistant status: %w", err)
	}

	h.hass = status
	return nil
}

// Close marks every light unavailable, removes all subscriptions and stops the command workers. Register fails after
// Close.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}

	h.closed = true
	devices := h.devices
	status := h.hass
	h.mu.Unlock()

	var err error
	if status != nil {
		err = h.s.Unsubscribe(ctx, status.FullyQualifiedTopic(""))
	}

	for _, d := range devices {
		err = errors.Join(err, d.close(ctx, h.w, h.s))
	}

	h.cancel()
	h.workers.Wait()

	if err != nil {
		return fmt.Errorf("bridge: close: %w", err)
	}

	return nil
}
