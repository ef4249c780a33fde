package framebus

import "github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"

// CameraHeader is the small, fixed-size header published alongside a camera
// frame's pixels.
type CameraHeader struct {
	TimestampUs int64
	FrameIndex  uint64
	Width       int
	Height      int
	Channels    int
}

// CameraEvent is one slot's worth of camera-ring payload: header plus
// pixels, published and read together so a torn read can never pair one
// frame's header with another's pixels.
type CameraEvent struct {
	Header CameraHeader
	Pixels []byte
}

// StimulusHeader is the only thing the stimulus ring ever carries — pixels
// for the stimulus frame live in the StimulusLibrary and are fetched by
// index, not copied onto the bus.
type StimulusHeader struct {
	TimestampUs int64
	FrameIndex  int
	Direction   config.Direction
	BarAngleDeg float64
}

// Bus is SharedFrameBus: one ring for camera frames, one for stimulus
// headers. The capture thread is the sole writer; any number of reader
// threads may subscribe.
type Bus struct {
	camera   *ring[CameraEvent]
	stimulus *ring[StimulusHeader]
}

// NewBus builds a bus with the given per-ring slot capacity (must be >= 3;
// smaller values are rounded up).
func NewBus(capacity int) *Bus {
	return &Bus{
		camera:   newRing[CameraEvent](capacity),
		stimulus: newRing[StimulusHeader](capacity),
	}
}

// PublishCamera never blocks; on a full ring it overwrites the oldest slot.
func (b *Bus) PublishCamera(h CameraHeader, pixels []byte) {
	b.camera.publish(CameraEvent{Header: h, Pixels: pixels})
}

// PublishStimulusMeta never blocks, for the same reason.
func (b *Bus) PublishStimulusMeta(h StimulusHeader) {
	b.stimulus.publish(h)
}

// CameraSubscriber is a bounded iterator over published camera events.
type CameraSubscriber struct{ sub *subscriber[CameraEvent] }

// SubscribeCamera attaches a new reader starting from the current tail.
func (b *Bus) SubscribeCamera() *CameraSubscriber {
	return &CameraSubscriber{sub: b.camera.newSubscriber()}
}

// Next returns the next camera event, or ok=false if none is available yet.
// skipped reports how many frames were dropped before this one due to the
// reader falling behind the writer.
func (s *CameraSubscriber) Next() (event CameraEvent, skipped uint64, ok bool) {
	return s.sub.Next()
}

// StimulusSubscriber is a bounded iterator over published stimulus headers.
type StimulusSubscriber struct{ sub *subscriber[StimulusHeader] }

func (b *Bus) SubscribeStimulus() *StimulusSubscriber {
	return &StimulusSubscriber{sub: b.stimulus.newSubscriber()}
}

func (s *StimulusSubscriber) Next() (header StimulusHeader, skipped uint64, ok bool) {
	return s.sub.Next()
}

// CameraDrops and StimulusDrops report the cumulative overwrite count per
// ring, surfaced to operators via the event channel.
func (b *Bus) CameraDrops() uint64   { return b.camera.Drops() }
func (b *Bus) StimulusDrops() uint64 { return b.stimulus.Drops() }
