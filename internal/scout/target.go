package scout

import (
	"sync"
	"time"
)

// Phase is the upload attempt state of a Target.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEncoding
	PhaseSending
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseEncoding:
		return "encoding"
	case PhaseSending:
		return "sending"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// Target is the shared sync state for the single watched file. Every
// field is guarded by mu; callers never see a partially applied update.
// The target is busy whenever phase is not PhaseIdle.
type Target struct {
	mu sync.Mutex

	path          string
	pantryID      string
	encoding      Encoding
	modified      bool
	revision      uint64
	phase         Phase
	cooldownUntil time.Time

	// lastFailure is the status of the last failed attempt, reported
	// while that attempt's cooldown runs.
	lastFailure *Status
	attempts    uint64
}

// Snapshot is a copy of a Target's fields taken under its lock.
type Snapshot struct {
	Path          string
	PantryID      string
	Encoding      Encoding
	Modified      bool
	Busy          bool
	Phase         Phase
	Revision      uint64
	CooldownUntil time.Time
	Attempts      uint64
}

// NewTarget returns an empty target: no path, no destination, base64
// encoding.
func NewTarget() *Target {
	return &Target{encoding: EncodingBase64}
}

// Snapshot returns a consistent copy of the target's state.
func (t *Target) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshotLocked()
}

func (t *Target) snapshotLocked() Snapshot {
	return Snapshot{
		Path:          t.path,
		PantryID:      t.pantryID,
		Encoding:      t.encoding,
		Modified:      t.modified,
		Busy:          t.phase != PhaseIdle,
		Phase:         t.phase,
		Revision:      t.revision,
		CooldownUntil: t.cooldownUntil,
		Attempts:      t.attempts,
	}
}

// SetPath replaces the watched path and marks the target modified.
func (t *Target) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.path = path
	t.markModifiedLocked()
}

// SetPantryID replaces the destination id and marks the target modified.
func (t *Target) SetPantryID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pantryID = id
	t.markModifiedLocked()
}

// SetEncoding changes the payload encoding. It does not mark the target
// modified.
func (t *Target) SetEncoding(enc Encoding) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.encoding = enc
}

// MarkModified records a local change.
func (t *Target) MarkModified() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.markModifiedLocked()
}

func (t *Target) markModifiedLocked() {
	t.modified = true
	t.revision++
}

// decision is the outcome of one scheduling evaluation.
type decision struct {
	status Status
	// start is set when the target was claimed for a new attempt; snap
	// is the state the attempt works from.
	start bool
	snap  Snapshot
	// statPath is set when the status depends on whether the file
	// exists, which is checked outside the lock.
	statPath string
	// needsDestination is set when an upload is due but no destination
	// is configured.
	needsDestination bool
}

// decide inspects the target and, if an upload is due and none is in
// progress, claims it by entering PhaseEncoding. The check and the
// claim happen in one critical section.
func (t *Target) decide() decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.path == "":
		return decision{status: Status{Kind: StatusNA}}

	case t.phase == PhaseCooldown && t.lastFailure != nil:
		return decision{status: *t.lastFailure}

	case t.phase != PhaseIdle:
		return decision{status: Status{Kind: StatusUploading}}

	case t.modified && t.pantryID == "":
		return decision{status: Status{Kind: StatusNA}, needsDestination: true}

	case t.modified:
		t.phase = PhaseEncoding
		t.lastFailure = nil
		t.attempts++

		return decision{status: Status{Kind: StatusUploading}, start: true, snap: t.snapshotLocked()}

	default:
		return decision{statPath: t.path}
	}
}

func (t *Target) setPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = p
}

// finish records an attempt's result and enters cooldown. On success
// modified is cleared only if no change was recorded after rev.
func (t *Target) finish(rev uint64, success bool, failure *Status, cooldownUntil time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if success && t.revision == rev {
		t.modified = false
	}

	t.lastFailure = failure
	t.phase = PhaseCooldown
	t.cooldownUntil = cooldownUntil
}

// release returns the target to idle after its cooldown.
func (t *Target) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = PhaseIdle
}
