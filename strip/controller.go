package strip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/metrics"
	"github.com/nlowe/techlife/mqtt"
	"github.com/nlowe/techlife/protocol"
)

// ErrAlreadySubscribed is the error returned by Controller.Subscribe when the controller is already subscribed to its
// state topic.
var ErrAlreadySubscribed = errors.New("controller already subscribed")

// State is the last known state of a strip. It implements slog.LogValuer.
type State struct {
	On bool
	// Brightness on a 0-255 scale
	Brightness int
}

func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("on", s.On),
		slog.Int("brightness", s.Brightness),
	)
}

// Notifier is told about every state change of a controller, after the change has been applied.
type Notifier interface {
	StateChanged(ctx context.Context, id ID, s State) error
}

// The NotifierFunc type is an adapter to allow the use of ordinary functions as a Notifier.
type NotifierFunc func(ctx context.Context, id ID, s State) error

func (f NotifierFunc) StateChanged(ctx context.Context, id ID, s State) error {
	return f(ctx, id, s)
}

// Option configures a Controller.
type Option func(c *Controller)

// WithNotifier sets the Notifier told about state changes.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithStateParser replaces protocol.NopStateParser as the decoder for payloads on the strip's state topic.
func WithStateParser(p protocol.StateParser) Option {
	return func(c *Controller) {
		c.parser = p
	}
}

// WithClock replaces time.Now for recording when the strip was last seen.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller holds the last known state of one strip and sends it command frames.
//
// State is updated optimistically: the strip never acknowledges commands, so a command is assumed to have worked once
// its frame has been published. If publishing fails the state is left untouched and the error is returned. Commands
// are applied one at a time in the order they are issued.
type Controller struct {
	id ID
	w  mqtt.Writer

	parser   protocol.StateParser
	notifier Notifier
	now      func() time.Time

	// cmdMu serializes commands, mu guards everything below it.
	cmdMu sync.Mutex
	mu    sync.RWMutex

	state    State
	lastSeen time.Time

	subscriber mqtt.Subscriber
	subCtx     context.Context

	log *slog.Logger
}

var _ mqtt.Handler = &Controller{}

// New constructs a Controller for the strip identified by id that publishes command frames with w. A new strip is
// assumed to be off at full brightness.
func New(id ID, w mqtt.Writer, opts ...Option) *Controller {
	c := &Controller{
		id:     id,
		w:      w,
		parser: protocol.NopStateParser,
		now:    time.Now,

		state: State{On: false, Brightness: protocol.MaxBrightness},

		log: tllog.ForComponent("strip").With(slog.String("device", string(id))),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) ID() ID {
	return c.id
}

func (c *Controller) Info() Info {
	return c.id.Info()
}

// State returns the last known state of the strip.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *Controller) IsOn() bool {
	return c.State().On
}

// Brightness returns the last known brightness on a 0-255 scale.
func (c *Controller) Brightness() int {
	return c.State().Brightness
}

// LastSeen returns when the strip last published on its state topic. The second return value is false if it has not
// been seen since the controller was created.
func (c *Controller) LastSeen() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastSeen, !c.lastSeen.IsZero()
}

// TurnOn switches the strip on at its current brightness.
func (c *Controller) TurnOn(ctx context.Context) error {
	return c.send(ctx, protocol.CommandOn, func(s *State) {
		s.On = true
	})
}

// TurnOnWithBrightness switches the strip on at the captured brightness level closest to level (0-255). Levels
// outside that range are clamped, and the clamped level is what the controller remembers.
func (c *Controller) TurnOnWithBrightness(ctx context.Context, level int) error {
	level = protocol.ClampBrightness(level)

	return c.send(ctx, protocol.BrightnessCommand(level), func(s *State) {
		s.On = true
		s.Brightness = level
	})
}

// TurnOff switches the strip off.
func (c *Controller) TurnOff(ctx context.Context) error {
	return c.send(ctx, protocol.CommandOff, func(s *State) {
		s.On = false
	})
}

func (c *Controller) send(ctx context.Context, cmd protocol.Command, apply func(s *State)) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	frame := protocol.FrameFor(cmd)
	topic := c.id.CommandTopic()
	log := c.log.With(slog.Any("command", cmd), slog.Any("frame", frame))

	if err := c.w.WriteTopic(ctx, topic, mqtt.WriteOptions{}, frame.Bytes()); err != nil {
		metrics.PublishErrors.WithLabelValues(cmd.String()).Inc()
		log.With(tllog.Error(err)).Warn("Failed to publish command")
		return fmt.Errorf("strip %s: publish %s to %s: %w", c.id, cmd, topic, err)
	}

	metrics.FramesPublished.WithLabelValues(cmd.String()).Inc()

	c.mu.Lock()
	apply(&c.state)
	s := c.state
	c.mu.Unlock()

	log.With(slog.Any("state", s)).Debug("Published command")
	return c.notify(ctx, s)
}

func (c *Controller) notify(ctx context.Context, s State) error {
	if c.notifier == nil {
		return nil
	}

	if err := c.notifier.StateChanged(ctx, c.id, s); err != nil {
		return fmt.Errorf("strip %s: notify state change: %w", c.id, err)
	}

	return nil
}

// HandleState processes a payload the strip published on its state topic. It records the strip as seen and hands the
// payload to the configured protocol.StateParser. State only changes if the parser understood the payload. It reports
// the resulting state and whether it changed. HandleState never panics, even if the parser does.
func (c *Controller) HandleState(payload []byte) (s State, changed bool) {
	metrics.StateMessages.Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSeen = c.now()
	s = c.state

	defer func() {
		if r := recover(); r != nil {
			c.log.With(slog.Any("panic", r), tllog.Hex("payload", payload)).Error("State parser panicked")
			s, changed = c.state, false
		}
	}()

	report, ok := c.parser.ParseState(payload)
	if !ok {
		c.log.With(tllog.Hex("payload", payload)).Debug("Ignoring state payload")
		return s, false
	}

	if report.On != nil {
		c.state.On = *report.On
	}
	if report.Brightness != nil {
		c.state.Brightness = protocol.ClampBrightness(*report.Brightness)
	}

	return c.state, c.state != s
}

// ServeMQTT implements mqtt.Handler for the strip's state topic. If the payload changed the state, the Notifier is
// told on a new goroutine so the transport is never blocked.
func (c *Controller) ServeMQTT(_ mqtt.Writer, topic string, payload []byte) {
	if topic != c.id.StateTopic() {
		return
	}

	s, changed := c.HandleState(payload)
	if !changed {
		return
	}

	c.mu.RLock()
	ctx := c.subCtx
	c.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		if err := c.notify(ctx, s); err != nil {
			c.log.With(tllog.Error(err)).Warn("Failed to report state change")
		}
	}()
}

// Subscribe subscribes the controller to the strip's state topic. Notifications caused by state payloads use ctx.
func (c *Controller) Subscribe(ctx context.Context, s mqtt.Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriber != nil {
		return ErrAlreadySubscribed
	}

	if err := s.Subscribe(ctx, c, mqtt.Subscription{Topic: c.id.StateTopic()}); err != nil {
		return fmt.Errorf("strip %s: subscribe: %w", c.id, err)
	}

	c.subscriber = s
	c.subCtx = ctx
	return nil
}

// Close unsubscribes the controller from the strip's state topic. It is safe to call Close more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	s := c.subscriber
	c.subscriber = nil
	c.subCtx = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	if err := s.Unsubscribe(ctx, c.id.StateTopic()); err != nil {
		return fmt.Errorf("strip %s: unsubscribe: %w", c.id, err)
	}

	return nil
}
