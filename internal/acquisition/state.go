package acquisition

import "github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"

// Mode is the orchestrator's run mode.
type Mode string

const (
	ModePreview  Mode = "preview"
	ModeRecord   Mode = "record"
	ModePlayback Mode = "playback"
)

// State is one node of the AcquisitionOrchestrator state machine.
type State string

const (
	StateIdle          State = "idle"
	StatePreparing     State = "preparing"
	StateBaseline      State = "baseline"
	StateStimulusCycle State = "stimulus_cycle"
	StateBetween       State = "between"
	StateFinalizing    State = "finalizing"
	StateCancelling    State = "cancelling"
)

// Event is emitted on the orchestrator's event channel.
type Event struct {
	Type        string
	State       State
	Direction   config.Direction
	Cycle       int
	FramesDone  int
	FramesTotal int
	Message     string
}
