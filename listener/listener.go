package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/metrics"
	"github.com/nlowe/techlife/mqtt"
	"github.com/nlowe/techlife/strip"
)

// Filter is the subscription used to see strip traffic. Strips publish on dev_pub_{id}, but a wildcard cannot be
// combined with other characters in a topic level, so every single-level topic is received and filtered here.
const Filter = mqtt.SingleLevelWildcard

var (
	// ErrAlreadyStarted is the error returned by Listener.Start when the listener is already subscribed.
	ErrAlreadyStarted = errors.New("listener already started")
	// ErrClosed is the error returned by Listener.Start after Close.
	ErrClosed = errors.New("listener closed")
)

// Registrar creates and registers a controller for a newly discovered strip.
type Registrar interface {
	Register(ctx context.Context, id strip.ID) (*strip.Controller, error)
}

// The RegistrarFunc type is an adapter to allow the use of ordinary functions as a Registrar.
type RegistrarFunc func(ctx context.Context, id strip.ID) (*strip.Controller, error)

func (f RegistrarFunc) Register(ctx context.Context, id strip.ID) (*strip.Controller, error) {
	return f(ctx, id)
}

// Listener watches strip state topics and hands every strip it has not seen before to a Registrar. Registration runs
// on its own goroutine so the transport is never blocked. A strip whose registration fails stays in the Registry and
// is not retried.
type Listener struct {
	registry  Registry
	registrar Registrar

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	subscriber mqtt.Subscriber
	closed     bool

	inflight sync.WaitGroup

	log *slog.Logger
}

var _ mqtt.Handler = &Listener{}

func New(registrar Registrar) *Listener {
	return &Listener{
		registrar: registrar,
		log:       tllog.ForComponent("listener"),
	}
}

// Registry returns the set of strips seen by this listener.
func (l *Listener) Registry() *Registry {
	return &l.registry
}

// ServeMQTT implements mqtt.Handler. Topics that are not strip state topics, that carry no ID or that belong to a
// strip already seen are dropped.
func (l *Listener) ServeMQTT(_ mqtt.Writer, topic string, _ []byte) {
	if !strings.HasPrefix(topic, strip.StateTopicPrefix) {
		metrics.DiscoveryIgnored.WithLabelValues(metrics.ReasonForeign).Inc()
		return
	}

	id, ok := strip.ParseID(topic)
	if !ok {
		metrics.DiscoveryIgnored.WithLabelValues(metrics.ReasonMalformed).Inc()
		l.log.With(slog.String("topic", topic)).Debug("Ignoring topic without device id")
		return
	}

	ctx, ok := l.begin()
	if !ok {
		l.log.With(slog.String("device", string(id))).Debug("Listener closed, dropping discovery")
		return
	}

	if !l.registry.Add(id) {
		l.inflight.Done()
		metrics.DiscoveryIgnored.WithLabelValues(metrics.ReasonDuplicate).Inc()
		return
	}

	metrics.DevicesDiscovered.Inc()
	l.log.With(slog.String("device", string(id))).Info("Discovered TechLife Pro device")

	go func() {
		defer l.inflight.Done()
		l.register(ctx, id)
	}()
}

func (l *Listener) register(ctx context.Context, id strip.ID) {
	log := l.log.With(slog.String("device", string(id)))

	c, err := l.registrar.Register(ctx, id)
	if err != nil {
		metrics.RegistrationErrors.Inc()
		log.With(tllog.Error(err)).Error("Failed to register device")
		return
	}

	if c != nil {
		log = log.With(slog.String("unique_id", c.ID().UniqueID()))
	}

	log.Debug("Registered device")
}

// begin reserves a slot in inflight unless the listener is closed. The caller must call inflight.Done when ok is true.
func (l *Listener) begin() (ctx context.Context, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, false
	}

	l.inflight.Add(1)
	if l.ctx == nil {
		return context.Background(), true
	}

	return l.ctx, true
}

// Start subscribes the listener. Registrations use a context derived from ctx that is cancelled by Close.
func (l *Listener) Start(ctx context.Context, s mqtt.Subscriber) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if l.subscriber != nil {
		return ErrAlreadyStarted
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	if err := s.Subscribe(ctx, l, mqtt.Subscription{Topic: Filter}); err != nil {
		l.cancel()
		l.ctx, l.cancel = nil, nil
		return fmt.Errorf("listener: subscribe %s: %w", Filter, err)
	}

	l.subscriber = s
	l.log.With(slog.String("filter", Filter)).Debug("Listening for devices")
	return nil
}

// Close unsubscribes the listener, cancels in-flight registrations and waits for them to return. Deliveries that
// arrive after Close are dropped.
func (l *Listener) Close(ctx context.Context) error {
	l.mu.Lock()
	s, cancel := l.subscriber, l.cancel
	l.subscriber, l.cancel = nil, nil
	l.closed = true
	l.mu.Unlock()

	var err error
	if s != nil {
		if uerr := s.Unsubscribe(ctx, Filter); uerr != nil {
			err = fmt.Errorf("listener: unsubscribe %s: %w", Filter, uerr)
		}
	}

	if cancel != nil {
		cancel()
	}

	l.inflight.Wait()
	return err
}
