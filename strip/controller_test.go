package strip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlowe/techlife/metrics"
	"github.com/nlowe/techlife/mqtt/mqtttest"
	"github.com/nlowe/techlife/protocol"
)

type recordingNotifier struct {
	mu     sync.Mutex
	states []State
	err    error
}

func (r *recordingNotifier) StateChanged(_ context.Context, _ ID, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, s)
	return r.err
}

func (r *recordingNotifier) Got() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]State(nil), r.states...)
}

func TestControllerDefaults(t *testing.T) {
	sut := New("AA", mqtttest.NewBroker())

	assert.Equal(t, ID("AA"), sut.ID())
	assert.False(t, sut.IsOn())
	assert.Equal(t, 255, sut.Brightness())

	_, seen := sut.LastSeen()
	assert.False(t, seen)
}

func TestControllerTurnOnWithBrightness(t *testing.T) {
	b := mqtttest.NewBroker()
	n := &recordingNotifier{}
	sut := New("AA", b, WithNotifier(n))

	before := testutil.ToFloat64(metrics.FramesPublished.WithLabelValues("brightness_50"))
	require.NoError(t, sut.TurnOnWithBrightness(t.Context(), 128))

	msgs := b.PublishedTo("dev_sub_AA")
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.EncodeBrightness(128).Bytes(), msgs[0].Payload)
	assert.False(t, msgs[0].Options.Retain)

	assert.True(t, sut.IsOn())
	assert.Equal(t, 128, sut.Brightness())
	assert.Equal(t, []State{{On: true, Brightness: 128}}, n.Got())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FramesPublished.WithLabelValues("brightness_50")))
}

func TestControllerTurnOnWithBrightnessClamps(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New("AA", b)

	require.NoError(t, sut.TurnOnWithBrightness(t.Context(), 1000))
	assert.Equal(t, 255, sut.Brightness())

	require.NoError(t, sut.TurnOnWithBrightness(t.Context(), -5))
	assert.Equal(t, 0, sut.Brightness())

	msgs := b.PublishedTo("dev_sub_AA")
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.FrameFor(protocol.CommandBrightness100).Bytes(), msgs[0].Payload)
	assert.Equal(t, protocol.FrameFor(protocol.CommandBrightness10).Bytes(), msgs[1].Payload)
}

func TestControllerTurnOnAndOff(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New("AA", b)

	require.NoError(t, sut.TurnOn(t.Context()))
	assert.True(t, sut.IsOn())
	assert.Equal(t, 255, sut.Brightness())

	require.NoError(t, sut.TurnOff(t.Context()))
	assert.False(t, sut.IsOn())
	assert.Equal(t, 255, sut.Brightness(), "turning off keeps the brightness")

	msgs := b.PublishedTo("dev_sub_AA")
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.EncodeOn().Bytes(), msgs[0].Payload)
	assert.Equal(t, protocol.EncodeOff().Bytes(), msgs[1].Payload)
}

func TestControllerPublishFailureKeepsState(t *testing.T) {
	b := mqtttest.NewBroker()
	n := &recordingNotifier{}
	sut := New("AA", b, WithNotifier(n))

	boom := errors.New("boom")
	b.FailWrites(boom)

	before := testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("on"))
	require.ErrorIs(t, sut.TurnOn(t.Context()), boom)
	require.ErrorIs(t, sut.TurnOnWithBrightness(t.Context(), 10), boom)

	assert.Equal(t, State{On: false, Brightness: 255}, sut.State())
	assert.Empty(t, n.Got())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("on")))
}

func TestControllerNotifierError(t *testing.T) {
	boom := errors.New("boom")
	sut := New("AA", mqtttest.NewBroker(), WithNotifier(&recordingNotifier{err: boom}))

	require.ErrorIs(t, sut.TurnOn(t.Context()), boom)
	assert.True(t, sut.IsOn(), "the frame was published so the state still changes")
}

func TestControllerStateMessagesDoNotChangeState(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := mqtttest.NewBroker()
	n := &recordingNotifier{}
	sut := New("AA", b, WithNotifier(n), WithClock(func() time.Time { return now }))

	require.NoError(t, sut.Subscribe(t.Context(), b))
	require.ErrorIs(t, sut.Subscribe(t.Context(), b), ErrAlreadySubscribed)

	before := testutil.ToFloat64(metrics.StateMessages)
	b.Deliver("dev_pub_AA", []byte{0x01, 0x02, 0x03})
	b.Deliver("dev_pub_AA", nil)

	assert.Equal(t, State{On: false, Brightness: 255}, sut.State())
	assert.Empty(t, n.Got())
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.StateMessages))

	seen, ok := sut.LastSeen()
	require.True(t, ok)
	assert.Equal(t, now, seen)

	require.NoError(t, sut.Close(t.Context()))
	require.NoError(t, sut.Close(t.Context()))
	assert.False(t, b.Subscribed("dev_pub_AA"))
}

func TestControllerStateParser(t *testing.T) {
	on := true
	level := 300

	b := mqtttest.NewBroker()
	n := &recordingNotifier{}
	sut := New("AA", b, WithNotifier(n), WithStateParser(protocol.StateParserFunc(func(payload []byte) (protocol.StateReport, bool) {
		if string(payload) != "known" {
			return protocol.StateReport{}, false
		}

		return protocol.StateReport{On: &on, Brightness: &level}, true
	})))

	require.NoError(t, sut.Subscribe(t.Context(), b))

	b.Deliver("dev_pub_AA", []byte("unknown"))
	assert.Equal(t, State{On: false, Brightness: 255}, sut.State())

	b.Deliver("dev_pub_AA", []byte("known"))
	assert.Equal(t, State{On: true, Brightness: 255}, sut.State())

	require.Eventually(t, func() bool {
		return len(n.Got()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestControllerStateParserPanic(t *testing.T) {
	sut := New("AA", mqtttest.NewBroker(), WithStateParser(protocol.StateParserFunc(func([]byte) (protocol.StateReport, bool) {
		panic("bad parser")
	})))

	var (
		s       State
		changed bool
	)
	require.NotPanics(t, func() {
		s, changed = sut.HandleState([]byte{0xff})
	})

	assert.False(t, changed)
	assert.Equal(t, State{On: false, Brightness: 255}, s)
}

func TestControllerIgnoresOtherTopics(t *testing.T) {
	sut := New("AA", mqtttest.NewBroker())

	sut.ServeMQTT(nil, "dev_pub_BB", nil)

	_, seen := sut.LastSeen()
	assert.False(t, seen)
}

func TestControllerConcurrentCommands(t *testing.T) {
	b := mqtttest.NewBroker()
	sut := New("AA", b)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sut.TurnOnWithBrightness(t.Context(), i*16)
		}()
	}
	wg.Wait()

	assert.Len(t, b.PublishedTo("dev_sub_AA"), 16)
	assert.True(t, sut.IsOn())
}
