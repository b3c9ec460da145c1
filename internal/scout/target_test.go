package scout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTarget_Empty(t *testing.T) {
	snap := NewTarget().Snapshot()
	assert.Equal(t, "", snap.Path)
	assert.Equal(t, "", snap.PantryID)
	assert.Equal(t, EncodingBase64, snap.Encoding)
	assert.False(t, snap.Modified)
	assert.False(t, snap.Busy)
	assert.Equal(t, PhaseIdle, snap.Phase)
}

func TestTarget_SettersMarkModified(t *testing.T) {
	tg := NewTarget()

	tg.SetPath("/tmp/match.dvw")
	snap := tg.Snapshot()
	assert.True(t, snap.Modified)
	assert.Equal(t, uint64(1), snap.Revision)

	tg.SetPantryID("abc123")
	assert.Equal(t, uint64(2), tg.Snapshot().Revision)

	tg.MarkModified()
	assert.Equal(t, uint64(3), tg.Snapshot().Revision)
}

func TestTarget_SetEncodingDoesNotMarkModified(t *testing.T) {
	tg := NewTarget()
	tg.SetEncoding(EncodingText)

	snap := tg.Snapshot()
	assert.Equal(t, EncodingText, snap.Encoding)
	assert.False(t, snap.Modified)
}

func TestDecide_Table(t *testing.T) {
	failed := Status{Kind: StatusFailed}

	tests := []struct {
		name      string
		setup     func(*Target)
		wantKind  StatusKind
		wantStart bool
		wantStat  bool
	}{
		{"no path", func(tg *Target) {}, StatusNA, false, false},
		{"no destination", func(tg *Target) { tg.SetPath("/x") }, StatusNA, false, false},
		{"due", func(tg *Target) { tg.SetPath("/x"); tg.SetPantryID("id") }, StatusUploading, true, false},
		{"busy sending", func(tg *Target) {
			tg.SetPath("/x")
			tg.SetPantryID("id")
			tg.phase = PhaseSending
		}, StatusUploading, false, false},
		{"cooldown after failure", func(tg *Target) {
			tg.SetPath("/x")
			tg.SetPantryID("id")
			tg.phase = PhaseCooldown
			tg.lastFailure = &failed
		}, StatusFailed, false, false},
		{"in sync", func(tg *Target) {
			tg.SetPath("/x")
			tg.modified = false
		}, StatusNA, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := NewTarget()
			tt.setup(tg)

			d := tg.decide()
			assert.Equal(t, tt.wantStart, d.start)
			assert.Equal(t, tt.wantStat, d.statPath != "")
			if !tt.wantStat {
				assert.Equal(t, tt.wantKind, d.status.Kind)
			}
		})
	}
}

func TestDecide_ClaimsOnce(t *testing.T) {
	tg := NewTarget()
	tg.SetPath("/x")
	tg.SetPantryID("id")

	first := tg.decide()
	require.True(t, first.start)
	assert.Equal(t, PhaseEncoding, tg.Snapshot().Phase)
	assert.True(t, tg.Snapshot().Busy)

	second := tg.decide()
	assert.False(t, second.start)
	assert.Equal(t, StatusUploading, second.status.Kind)
	assert.Equal(t, uint64(1), tg.Snapshot().Attempts)
}

func TestFinish_SuccessClearsModified(t *testing.T) {
	tg := NewTarget()
	tg.SetPath("/x")
	tg.SetPantryID("id")
	d := tg.decide()
	require.True(t, d.start)

	until := time.Now().Add(time.Second)
	tg.finish(d.snap.Revision, true, nil, until)

	snap := tg.Snapshot()
	assert.False(t, snap.Modified)
	assert.True(t, snap.Busy, "busy holds through cooldown")
	assert.Equal(t, PhaseCooldown, snap.Phase)
	assert.Equal(t, until, snap.CooldownUntil)

	tg.release()
	assert.False(t, tg.Snapshot().Busy)
}

func TestFinish_SuccessAfterNewChangeKeepsModified(t *testing.T) {
	tg := NewTarget()
	tg.SetPath("/x")
	tg.SetPantryID("id")
	d := tg.decide()
	require.True(t, d.start)

	tg.MarkModified()
	tg.finish(d.snap.Revision, true, nil, time.Now())

	assert.True(t, tg.Snapshot().Modified)
}

func TestFinish_FailureKeepsModified(t *testing.T) {
	tg := NewTarget()
	tg.SetPath("/x")
	tg.SetPantryID("id")
	d := tg.decide()
	require.True(t, d.start)

	failed := Status{Kind: StatusFailed}
	tg.finish(d.snap.Revision, false, &failed, time.Now())

	assert.True(t, tg.Snapshot().Modified)
	assert.Equal(t, failed, tg.decide().status)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "encoding", PhaseEncoding.String())
	assert.Equal(t, "sending", PhaseSending.String())
	assert.Equal(t, "cooldown", PhaseCooldown.String())
}
