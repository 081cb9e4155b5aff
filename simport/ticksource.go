package simport

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// TickSource drives Scheduler.TickHook at a fixed frequency off a
// benbjohnson/clock.Clock, so tests can substitute clock.NewMock and advance
// time deterministically instead of racing a real wall-clock ticker.
type TickSource struct {
	Clock clock.Clock

	stop chan struct{}

	panicHook func(msg string)
	log       logrus.FieldLogger
}

// NewTickSource constructs a TickSource over the given clock. Pass
// clock.New() for a real-time source, or clock.NewMock() in tests.
func NewTickSource(c clock.Clock) *TickSource {
	if c == nil {
		c = clock.New()
	}
	return &TickSource{
		Clock:     c,
		panicHook: func(msg string) { panic(msg) },
		log:       logrus.StandardLogger(),
	}
}

// SetPanicHook installs fn as the abort path for a misconfigured StartAtHz
// call (port.PanicHookSetter). bootstrap.Phase1 installs the same hook it
// gives the scheduler and Port, if this TickSource is the one named in
// Config.TickSource.
func (s *TickSource) SetPanicHook(fn func(msg string)) {
	s.panicHook = fn
}

// SetLog installs log as the destination for this TickSource's diagnostics
// (port.LogSetter).
func (s *TickSource) SetLog(log logrus.FieldLogger) {
	s.log = log
}

// StartAtHz arms a ticker at the given frequency and calls onTick from a
// dedicated goroutine on every tick until Stop is called. hz <= 0 is a
// programmer fault (spec.md §7): a misconfigured tick source is a boot-time
// programming error, not a runtime condition to recover from.
func (s *TickSource) StartAtHz(hz int, onTick func()) {
	if hz <= 0 {
		msg := fmt.Sprintf("simport: TickSource.StartAtHz requires hz > 0, got %d", hz)
		s.log.WithField("component", "simport").Error(msg)
		s.panicHook(msg)
		return
	}
	s.stop = make(chan struct{})
	ticker := s.Clock.Ticker(time.Second / time.Duration(hz))
	go func() {
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.log.WithField("component", "simport").Debug("tick")
				onTick()
			}
		}
	}()
}

// Stop halts the ticker goroutine. Safe to call at most once.
func (s *TickSource) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}
