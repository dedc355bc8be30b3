package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"howsair-beacon/internal/telemetry"
	"howsair-beacon/internal/types"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeBuzzer struct {
	tones    []physic.Frequency
	silences int
	writes   int
	toneErr  error
}

func (b *fakeBuzzer) Tone(f physic.Frequency) error {
	b.writes++
	if b.toneErr != nil {
		return b.toneErr
	}
	b.tones = append(b.tones, f)
	return nil
}

func (b *fakeBuzzer) Silence() error {
	b.writes++
	b.silences++
	return nil
}

func newTestSequencer(t *testing.T) (*Sequencer, *manualClock, *fakeBuzzer) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1000, 0)}
	buzzer := &fakeBuzzer{}
	seq, err := NewSequencer(buzzer, clock, DefaultMelody(), nil)
	require.NoError(t, err)
	return seq, clock, buzzer
}

func TestDefaultMelody(t *testing.T) {
	m := DefaultMelody()
	require.Len(t, m, 8)
	assert.Equal(t, 262*physic.Hertz, m[0].Frequency)
	assert.Equal(t, 523*physic.Hertz, m[7].Frequency)
	for i := 0; i < 7; i++ {
		assert.Equal(t, 300*time.Millisecond, m[i].Duration)
	}
	assert.Equal(t, 600*time.Millisecond, m[7].Duration)
	assert.NoError(t, m.Validate())
}

func TestMelody_Validate(t *testing.T) {
	assert.True(t, errors.Is(Melody(nil).Validate(), ErrEmptyMelody))
	assert.Error(t, Melody{{Frequency: physic.Hertz, Duration: 0}}.Validate())
	assert.Error(t, Melody{{Frequency: -physic.Hertz, Duration: time.Second}}.Validate())
	assert.NoError(t, Melody{{Frequency: 0, Duration: time.Second}}.Validate())
}

func TestNewSequencer(t *testing.T) {
	_, err := NewSequencer(nil, nil, DefaultMelody(), nil)
	assert.Error(t, err)

	_, err = NewSequencer(&fakeBuzzer{}, nil, Melody{}, nil)
	assert.True(t, errors.Is(err, ErrEmptyMelody))

	seq, err := NewSequencer(&fakeBuzzer{}, nil, DefaultMelody(), nil)
	require.NoError(t, err)
	assert.Equal(t, Idle, seq.State())
	assert.False(t, seq.IsActive())
}

func TestSequencer_CyclesThroughMelody(t *testing.T) {
	seq, clock, buzzer := newTestSequencer(t)
	melody := DefaultMelody()

	require.NoError(t, seq.Start())
	assert.True(t, seq.IsActive())

	visited := []int{seq.NoteIndex()}
	for step := 0; step < 16; step++ {
		clock.Advance(melody[seq.NoteIndex()].Duration)
		require.NoError(t, seq.Update())
		visited = append(visited, seq.NoteIndex())
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7, 0}, visited)
	require.Len(t, buzzer.tones, 17)
	for i, f := range buzzer.tones {
		assert.Equal(t, melody[visited[i]].Frequency, f, "tone %d", i)
	}
	assert.Equal(t, 16, buzzer.silences)
}

func TestSequencer_UpdateBeforeDurationIsNoop(t *testing.T) {
	seq, clock, buzzer := newTestSequencer(t)
	require.NoError(t, seq.Start())
	writes := buzzer.writes

	clock.Advance(299 * time.Millisecond)
	require.NoError(t, seq.Update())
	assert.Equal(t, 0, seq.NoteIndex())
	assert.Equal(t, writes, buzzer.writes)

	clock.Advance(time.Millisecond)
	require.NoError(t, seq.Update())
	assert.Equal(t, 1, seq.NoteIndex())
}

func TestSequencer_LongNoteHoldsAcrossUpdates(t *testing.T) {
	seq, clock, _ := newTestSequencer(t)
	require.NoError(t, seq.Start())
	for i := 0; i < 7; i++ {
		clock.Advance(300 * time.Millisecond)
		require.NoError(t, seq.Update())
	}
	require.Equal(t, 7, seq.NoteIndex())

	clock.Advance(300 * time.Millisecond)
	require.NoError(t, seq.Update())
	assert.Equal(t, 7, seq.NoteIndex(), "the last note lasts 600ms")

	clock.Advance(300 * time.Millisecond)
	require.NoError(t, seq.Update())
	assert.Equal(t, 0, seq.NoteIndex())
}

func TestSequencer_OneNotePerUpdate(t *testing.T) {
	seq, clock, _ := newTestSequencer(t)
	require.NoError(t, seq.Start())

	clock.Advance(10 * time.Second)
	require.NoError(t, seq.Update())
	assert.Equal(t, 1, seq.NoteIndex())
}

func TestSequencer_Stop(t *testing.T) {
	seq, clock, buzzer := newTestSequencer(t)
	require.NoError(t, seq.Start())
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, seq.Update())
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, seq.Update())

	require.NoError(t, seq.Stop())
	assert.False(t, seq.IsActive())
	assert.Equal(t, Idle, seq.State())

	writes := buzzer.writes
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		require.NoError(t, seq.Update())
	}
	require.NoError(t, seq.Stop())
	assert.Equal(t, writes, buzzer.writes, "idle sequencer must not touch the buzzer")
}

func TestSequencer_StartIsIdempotent(t *testing.T) {
	seq, clock, buzzer := newTestSequencer(t)
	require.NoError(t, seq.Start())
	clock.Advance(300 * time.Millisecond)
	require.NoError(t, seq.Update())

	require.NoError(t, seq.Start())
	assert.Equal(t, 1, seq.NoteIndex())
	assert.Len(t, buzzer.tones, 2)

	require.NoError(t, seq.Stop())
	require.NoError(t, seq.Start())
	assert.Equal(t, 0, seq.NoteIndex())
	assert.Equal(t, 262*physic.Hertz, buzzer.tones[len(buzzer.tones)-1])
}

func TestSequencer_StartFailureStaysIdle(t *testing.T) {
	buzzer := &fakeBuzzer{toneErr: errors.New("pwm busy")}
	seq, err := NewSequencer(buzzer, &manualClock{}, DefaultMelody(), nil)
	require.NoError(t, err)

	require.Error(t, seq.Start())
	assert.False(t, seq.IsActive())
}

func TestSequencer_Rest(t *testing.T) {
	buzzer := &fakeBuzzer{}
	clock := &manualClock{}
	seq, err := NewSequencer(buzzer, clock, Melody{
		{Frequency: 440 * physic.Hertz, Duration: time.Second},
		{Frequency: 0, Duration: time.Second},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, seq.Start())

	clock.Advance(time.Second)
	require.NoError(t, seq.Update())
	assert.Equal(t, 1, seq.NoteIndex())
	assert.Len(t, buzzer.tones, 1)
	assert.Equal(t, 2, buzzer.silences)
}

func TestThresholdTrigger(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	trig, err := NewThresholdTrigger(seq, 100, 10, nil)
	require.NoError(t, err)

	observe := func(ozone int) {
		t.Helper()
		require.NoError(t, trig.Observe(context.Background(), telemetry.Record{Measurement: types.Measurement{OzonePPM: ozone}}))
	}

	observe(99)
	assert.False(t, seq.IsActive())
	observe(100)
	assert.True(t, seq.IsActive())
	observe(95)
	assert.True(t, seq.IsActive(), "inside hysteresis band")
	observe(89)
	assert.False(t, seq.IsActive())

	_, err = NewThresholdTrigger(seq, 100, -1, nil)
	assert.Error(t, err)
	_, err = NewThresholdTrigger(nil, 100, 0, nil)
	assert.Error(t, err)
}
