package check

import "time"

// Stage describes a phase of a check run.
type Stage string

const (
	StageCompile Stage = "compile"
	StageExtract Stage = "extract"
	StageCheck   Stage = "check"
	StageMap     Stage = "map"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusCached  Status = "cached"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for one language text, or for the whole run when
// Item is empty.
type Event struct {
	Item    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
	// Done and Total count chunks within Item during StageCheck.
	Done, Total int
}

// ProgressSink consumes progress events. Implementations must be safe for
// concurrent use; languages report from their own goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
