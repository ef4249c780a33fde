package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/version"
)

// Metadata is the content of metadata.json: every parameter group at
// session start, start/end timestamps, the directions actually recorded,
// and the software version tag.
type Metadata struct {
	Parameters         config.Snapshot     `json:"parameters"`
	StartedAt          time.Time           `json:"started_at"`
	EndedAt            time.Time           `json:"ended_at"`
	DirectionsRecorded []config.Direction  `json:"directions_recorded"`
	SoftwareVersion    string              `json:"software_version"`
	Partial            bool                `json:"partial"`
}

// Finalize writes every buffered direction's camera archive, closes and
// flushes event files, writes metadata.json, then atomically renames the
// `.partial` directory to its final name. partial marks
// a cancelled run; the directory still lands at its final
// name so it is discoverable, with Metadata.Partial recording the truth.
func (r *Recorder) Finalize(params config.Snapshot, partial bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var directionsRecorded []config.Direction
	for _, d := range r.recorded {
		st := r.states[d]
		if err := st.eventW.Flush(); err != nil {
			return fmt.Errorf("recorder: flushing events for %s: %w", d, err)
		}
		if err := st.eventFile.Sync(); err != nil {
			return fmt.Errorf("recorder: syncing events for %s: %w", d, err)
		}
		if err := st.eventFile.Close(); err != nil {
			return fmt.Errorf("recorder: closing events for %s: %w", d, err)
		}
		if len(st.frames) == 0 {
			continue
		}
		path := filepath.Join(r.partialDir, string(d)+"_camera.h5")
		if err := writeCameraArchive(path, string(d), st.frames); err != nil {
			return fmt.Errorf("recorder: writing camera archive for %s: %w", d, err)
		}
		directionsRecorded = append(directionsRecorded, d)
	}

	meta := Metadata{
		Parameters:         params,
		StartedAt:          r.startedAt,
		EndedAt:            time.Now().UTC(),
		DirectionsRecorded: directionsRecorded,
		SoftwareVersion:    version.Version,
		Partial:            partial,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("recorder: marshaling metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.partialDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("recorder: writing metadata.json: %w", err)
	}

	finalDir := filepath.Join(r.sessionsRoot, r.name)
	if err := os.Rename(r.partialDir, finalDir); err != nil {
		return fmt.Errorf("recorder: finalizing session directory: %w", err)
	}
	return nil
}
