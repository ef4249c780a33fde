package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateValidatesBounds(t *testing.T) {
	s := New("")
	_, err := s.Update(GroupStimulus, map[string]interface{}{"bar_width_deg": 200.0})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bar_width_deg", verr.Field)
}

func TestUpdateAppliesWithinBounds(t *testing.T) {
	s := New("")
	snap, err := s.Update(GroupStimulus, map[string]interface{}{"bar_width_deg": 15.0})
	require.NoError(t, err)
	assert.Equal(t, 15.0, snap.Stimulus.BarWidthDeg)
}

func TestUpdateBroadcastsSnapshot(t *testing.T) {
	s := New("")
	var got Snapshot
	calls := 0
	s.Subscribe(func(snap Snapshot) {
		calls++
		got = snap
	})
	_, err := s.Update(GroupAcquisition, map[string]interface{}{"cycles": 5.0})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, got.Acquisition.Cycles)
}

// TestVolatilePersistence checks that, regardless of
// updates, the on-disk file's current.{camera,monitor} equals the
// default sentinel values.
func TestVolatilePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")
	s := New(path)

	_, err := s.Update(GroupAcquisition, map[string]interface{}{"cycles": 3.0})
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultMonitor(), reloaded.Snapshot().Monitor)
	assert.Equal(t, defaultCamera(), reloaded.Snapshot().Camera)
	assert.Equal(t, 3, reloaded.Snapshot().Acquisition.Cycles)
}

func TestFingerprintStableAcrossNonGenerationFields(t *testing.T) {
	s := New("")
	fp1 := s.Fingerprint()
	_, err := s.Update(GroupAcquisition, map[string]interface{}{"cycles": 99.0})
	require.NoError(t, err)
	fp2 := s.Fingerprint()
	assert.Equal(t, fp1, fp2, "acquisition changes must not move the generation fingerprint")

	_, err = s.Update(GroupStimulus, map[string]interface{}{"bar_width_deg": 10.0})
	require.NoError(t, err)
	fp3 := s.Fingerprint()
	assert.NotEqual(t, fp2, fp3, "stimulus changes must move the generation fingerprint")
}

func TestDifferencesEnumeratesEveryChangedKey(t *testing.T) {
	saved := FieldValues(Monitor{FPS: 60}, Stimulus{})
	current := FieldValues(Monitor{FPS: 120}, Stimulus{})
	diffs := Differences(saved, current, GenerationFingerprintKeys)
	require.Len(t, diffs, 1)
	assert.Equal(t, "monitor.fps", diffs[0].Key)
}
