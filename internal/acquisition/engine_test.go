package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/camera"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/framebus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessFrameNilPhaseYieldsNoStimulusFrame(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)
	sub := bus.SubscribeStimulus()

	e.processFrame(camera.Frame{TimestampUs: 1000, FrameIndex: 0, Width: 1, Height: 1, Channels: 1, Image: []byte{1}}, nil)

	h, _, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, noStimulusFrame, h.FrameIndex)
}

func TestProcessFrameComputesStimulusIndexFromPhaseStart(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)
	sub := bus.SubscribeStimulus()

	e.SetPhase(&Phase{Direction: config.DirectionLR, TotalFrames: 100, StartUs: 0})

	// phase_s = 0.5s at 60 fps -> i_stim = 30
	e.processFrame(camera.Frame{TimestampUs: 500_000, FrameIndex: 1, Width: 1, Height: 1, Channels: 1, Image: []byte{1}}, nil)

	h, _, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, 30, h.FrameIndex)
}

func TestProcessFrameClampsStimulusIndexAtUpperBound(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)
	sub := bus.SubscribeStimulus()

	e.SetPhase(&Phase{Direction: config.DirectionLR, TotalFrames: 10, StartUs: 0})

	// far beyond the sweep duration: must clamp to the last valid index
	e.processFrame(camera.Frame{TimestampUs: 10_000_000, FrameIndex: 1, Width: 1, Height: 1, Channels: 1, Image: []byte{1}}, nil)

	h, _, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, 9, h.FrameIndex)
}

func TestProcessFrameRecordsSyncSample(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)

	e.processFrame(camera.Frame{TimestampUs: 42, FrameIndex: 0, Width: 1, Height: 1, Channels: 1, Image: []byte{1}}, nil)

	snap := tracker.Snapshot(5)
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, int64(42), snap.Samples[0].CameraTsUs)
	assert.Equal(t, int64(42), snap.Samples[0].StimulusTsUs)
}

func TestEnqueueRecordSurfacesBackpressureFault(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)
	e.backpressureTimeout = 10 * time.Millisecond
	e.recordQueue = make(chan recordJob) // unbuffered, no reader: every send blocks

	faults := make(chan Fault, 1)
	e.enqueueRecord(recordJob{direction: config.DirectionLR}, faults)

	select {
	case f := <-faults:
		assert.Equal(t, FaultRecorderBackpressure, f.Code)
	case <-time.After(time.Second):
		t.Fatal("expected a backpressure fault")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan camera.Frame)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, frames, nil) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsNilWhenFramesChannelCloses(t *testing.T) {
	bus := framebus.NewBus(4)
	tracker := synctracker.New(synctracker.DefaultWindow)
	e := NewEngine(bus, tracker, nil, 60.0)

	frames := make(chan camera.Frame)
	close(frames)

	err := e.Run(context.Background(), frames, nil)
	assert.NoError(t, err)
}
