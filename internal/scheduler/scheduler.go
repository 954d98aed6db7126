// Package scheduler decides when a document is checked. It is a three-state
// machine (Idle, Pending, Checking) driven by one goroutine and one timer.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State of a scheduler.
type State uint8

const (
	Idle State = iota
	Pending
	Checking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Checking:
		return "checking"
	}
	return "unknown"
}

// Event is an input to the state machine.
type Event uint8

const (
	// Open, Save and Request start a check at once.
	Open Event = iota
	Save
	Request
	// Change is debounced; it is ignored when no debounce is configured.
	Change
)

func (e Event) String() string {
	switch e {
	case Open:
		return "open"
	case Save:
		return "save"
	case Request:
		return "request"
	case Change:
		return "change"
	}
	return "unknown"
}

// Options configure a Scheduler.
type Options struct {
	// Debounce is the delay after the last change; zero disables checks on change.
	Debounce time.Duration
	// Run performs one check. Its context is cancelled only by Close.
	Run func(ctx context.Context)
	// OnState observes transitions. It is called from the loop goroutine.
	OnState func(State)
}

// Scheduler serialises checks of one document.
type Scheduler struct {
	run      func(context.Context)
	onState  func(State)
	debounce atomic.Int64
	state    atomic.Uint32

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New starts the loop goroutine.
func New(opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		run:     opts.Run,
		onState: opts.OnState,
		events:  make(chan Event, 16),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if s.run == nil {
		s.run = func(context.Context) {}
	}
	s.debounce.Store(int64(opts.Debounce))
	go s.loop()
	return s
}

// Notify feeds an event to the loop. It never blocks on a running check.
func (s *Scheduler) Notify(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Close stops the loop and waits for a running check to return.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Scheduler) set(st State) {
	if State(s.state.Swap(uint32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	var (
		finished = make(chan struct{}, 1)
		// rerun is the delay before the follow-up check, or -1 when
		// nothing arrived during the current one.
		rerun time.Duration = -1
	)
	start := func() {
		stopTimer(timer)
		s.set(Checking)
		go func() {
			s.run(s.ctx)
			finished <- struct{}{}
		}()
	}
	wait := func(d time.Duration) {
		stopTimer(timer)
		timer.Reset(d)
		s.set(Pending)
	}

	for {
		select {
		case <-s.ctx.Done():
			stopTimer(timer)
			if s.State() == Checking {
				<-finished
			}
			s.set(Idle)
			return

		case ev := <-s.events:
			debounce := time.Duration(s.debounce.Load())
			switch {
			case s.State() == Checking:
				// never preempt: remember and run again afterwards
				switch {
				case ev != Change:
					rerun = 0
				case debounce > 0 && rerun < 0:
					rerun = debounce
				}
			case ev != Change:
				start()
			case debounce > 0:
				wait(debounce)
			}

		case <-timer.C:
			if s.State() == Pending {
				start()
			}

		case <-finished:
			if rerun >= 0 {
				wait(rerun)
				rerun = -1
			} else {
				s.set(Idle)
			}
		}
	}
}

// stopTimer stops t and drains a pending fire.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
