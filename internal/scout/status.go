package scout

import "sync"

// StatusKind is the closed set of engine states reported to observers.
type StatusKind int

const (
	// StatusNA means no file is configured, or uploads are disabled.
	StatusNA StatusKind = iota
	StatusUploading
	StatusOK
	// StatusMissing means the file is in sync but no longer exists on disk.
	StatusMissing
	// StatusFailed means the last push was rejected or never reached the server.
	StatusFailed
	// StatusError carries a UI-safe description of a local read failure.
	StatusError
)

// Status is a value pushed to an Emitter. Message is only set for
// StatusError.
type Status struct {
	Kind    StatusKind
	Message string
}

// String converts the status to the text the UI understands.
func (s Status) String() string {
	switch s.Kind {
	case StatusNA:
		return "na"
	case StatusUploading:
		return "uploading"
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "file does not exist"
	case StatusFailed:
		return "failed"
	default:
		return s.Message
	}
}

// Emitter receives status updates. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(Status)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Status)

// Emit calls f(s).
func (f EmitterFunc) Emit(s Status) { f(s) }

// statusGate forwards a status to the downstream emitter only when it
// differs from the previous one.
type statusGate struct {
	mu   sync.Mutex
	last Status
	set  bool
	out  Emitter
}

func newStatusGate(out Emitter) *statusGate {
	return &statusGate{out: out}
}

func (g *statusGate) Emit(s Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.set && g.last == s {
		return
	}

	g.last = s
	g.set = true

	if g.out != nil {
		g.out.Emit(s)
	}
}

// Last returns the most recent status, or StatusNA before any emission.
func (g *statusGate) Last() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last
}
