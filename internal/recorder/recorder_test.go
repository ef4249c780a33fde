package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesPartialDirectory(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root, "session1")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "session1.partial"))
	require.NoError(t, err)
	assert.Empty(t, r.RecordedDirections())
}

func TestAppendFrameWritesEventLine(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root, "session1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := r.AppendFrame(config.DirectionLR, 4, 4, 1, make([]byte, 16), Event{
			TimestampUs: int64(i * 1000),
			FrameIndex:  uint64(i),
			BarAngleDeg: float64(i) * 2.5,
		})
		require.NoError(t, err)
	}
	require.NoError(t, r.FlushDirection(config.DirectionLR))
	assert.Equal(t, 3, r.FrameCount(config.DirectionLR))
	assert.Equal(t, []config.Direction{config.DirectionLR}, r.RecordedDirections())

	f, err := os.Open(filepath.Join(root, "session1.partial", "LR_events.json"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var evt Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		assert.Equal(t, uint64(count), evt.FrameIndex)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestFinalizeRenamesPartialToFinal(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root, "session1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, r.AppendFrame(config.DirectionLR, 2, 2, 1, make([]byte, 4), Event{FrameIndex: uint64(i)}))
	}

	store := config.New(filepath.Join(root, "params.json"))
	require.NoError(t, r.Finalize(store.Snapshot(), false))

	_, err = os.Stat(filepath.Join(root, "session1.partial"))
	assert.True(t, os.IsNotExist(err))

	metaPath := filepath.Join(root, "session1", "metadata.json")
	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.False(t, meta.Partial)
	assert.Equal(t, []config.Direction{config.DirectionLR}, meta.DirectionsRecorded)

	_, err = os.Stat(filepath.Join(root, "session1", "LR_camera.h5"))
	require.NoError(t, err)
}

func TestFinalizeMarksPartialOnCancel(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root, "session1")
	require.NoError(t, err)
	require.NoError(t, r.AppendFrame(config.DirectionLR, 2, 2, 1, make([]byte, 4), Event{}))

	store := config.New(filepath.Join(root, "params.json"))
	require.NoError(t, r.Finalize(store.Snapshot(), true))

	data, err := os.ReadFile(filepath.Join(root, "session1", "metadata.json"))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.True(t, meta.Partial)
}

func TestFinalizeSkipsDirectionWithNoFrames(t *testing.T) {
	root := t.TempDir()
	r, err := Open(root, "session1")
	require.NoError(t, err)
	_, err = r.stateFor(config.DirectionRL)
	require.NoError(t, err)

	store := config.New(filepath.Join(root, "params.json"))
	require.NoError(t, r.Finalize(store.Snapshot(), false))

	_, err = os.Stat(filepath.Join(root, "session1", "RL_camera.h5"))
	assert.True(t, os.IsNotExist(err))
}
