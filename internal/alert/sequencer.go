// Package alert drives the buzzer through a looping melody without ever
// blocking the control loop: Update compares elapsed time against the
// current note and changes note at most once per call.
package alert

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/physic"
)

var ErrEmptyMelody = errors.New("alert: empty melody")

// ToneOutput is the buzzer pin.
type ToneOutput interface {
	Tone(f physic.Frequency) error
	Silence() error
}

// Clock must be monotonic.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Note with a zero Frequency is a rest.
type Note struct {
	Frequency physic.Frequency
	Duration  time.Duration
}

type Melody []Note

// DefaultMelody is the C major scale C4..C5 with a held final note.
func DefaultMelody() Melody {
	freqs := []int64{262, 294, 330, 349, 392, 440, 494, 523}
	m := make(Melody, len(freqs))
	for i, f := range freqs {
		m[i] = Note{Frequency: physic.Frequency(f) * physic.Hertz, Duration: 300 * time.Millisecond}
	}
	m[len(m)-1].Duration = 600 * time.Millisecond
	return m
}

func (m Melody) Validate() error {
	if len(m) == 0 {
		return ErrEmptyMelody
	}
	for i, n := range m {
		if n.Duration <= 0 {
			return fmt.Errorf("alert: note %d: duration must be positive, got %v", i, n.Duration)
		}
		if n.Frequency < 0 {
			return fmt.Errorf("alert: note %d: negative frequency %v", i, n.Frequency)
		}
	}
	return nil
}

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Sequencer is not safe for concurrent use; it belongs to the control loop.
type Sequencer struct {
	out    ToneOutput
	clock  Clock
	melody Melody
	logger *slog.Logger

	state    State
	index    int
	lastNote time.Time
}

func NewSequencer(out ToneOutput, clock Clock, melody Melody, logger *slog.Logger) (*Sequencer, error) {
	if out == nil {
		return nil, errors.New("alert: nil tone output")
	}
	if err := melody.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		out:    out,
		clock:  clock,
		melody: append(Melody(nil), melody...),
		logger: logger,
	}, nil
}

// Start begins the melody at note 0. It is a no-op while already playing.
func (s *Sequencer) Start() error {
	if s.state == Playing {
		return nil
	}
	if err := s.sound(0); err != nil {
		return fmt.Errorf("alert: start: %w", err)
	}
	s.state = Playing
	s.index = 0
	s.lastNote = s.clock.Now()
	s.logger.Info("alert: melody started", "notes", len(s.melody))
	return nil
}

// Stop silences the buzzer. It is a no-op while idle.
func (s *Sequencer) Stop() error {
	if s.state == Idle {
		return nil
	}
	s.state = Idle
	s.index = 0
	s.logger.Info("alert: melody stopped")
	if err := s.out.Silence(); err != nil {
		return fmt.Errorf("alert: stop: %w", err)
	}
	return nil
}

// Update advances to the next note once the current one has lasted its
// duration, wrapping after the last note. A failed hardware write does not
// stall the melody.
func (s *Sequencer) Update() error {
	if s.state != Playing {
		return nil
	}
	now := s.clock.Now()
	if now.Sub(s.lastNote) < s.melody[s.index].Duration {
		return nil
	}

	silenceErr := s.out.Silence()
	s.index = (s.index + 1) % len(s.melody)
	s.lastNote = now
	if err := errors.Join(silenceErr, s.sound(s.index)); err != nil {
		return fmt.Errorf("alert: note %d: %w", s.index, err)
	}
	return nil
}

func (s *Sequencer) sound(i int) error {
	if f := s.melody[i].Frequency; f > 0 {
		return s.out.Tone(f)
	}
	return s.out.Silence()
}

func (s *Sequencer) IsActive() bool { return s.state == Playing }

func (s *Sequencer) State() State { return s.state }

// NoteIndex is the note currently sounding (meaningful while playing).
func (s *Sequencer) NoteIndex() int { return s.index }

func (s *Sequencer) Melody() Melody { return append(Melody(nil), s.melody...) }
