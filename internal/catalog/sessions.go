package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
)

// SessionRow is one catalog entry for a recorded session directory.
type SessionRow struct {
	SessionID          string             `json:"session_id"`
	Name               string             `json:"name"`
	SubjectID          string             `json:"subject_id"`
	StartedAt          time.Time          `json:"started_at"`
	EndedAt            *time.Time         `json:"ended_at,omitempty"`
	Partial            bool               `json:"partial"`
	DirectionsRecorded []config.Direction `json:"directions_recorded"`
	LibraryFingerprint string             `json:"library_fingerprint"`
}

// RecordSession inserts a row for a session that just started recording
// and returns its generated id.
func (c *Catalog) RecordSession(name, subjectID, libraryFingerprint string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := c.Exec(
		`INSERT INTO sessions (session_id, name, subject_id, started_at, partial, library_fingerprint)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		id, name, subjectID, startedAt.UnixMicro(), libraryFingerprint,
	)
	if err != nil {
		return "", fmt.Errorf("catalog: inserting session %s: %w", name, err)
	}
	return id, nil
}

// MarkFinalized records a completed run: end time, recorded directions,
// and partial=false.
func (c *Catalog) MarkFinalized(sessionID string, endedAt time.Time, directions []config.Direction) error {
	return c.markEnded(sessionID, endedAt, directions, false)
}

// MarkPartial records a cancelled or faulted run that was still finalized
// on disk; the directions that completed remain listed.
func (c *Catalog) MarkPartial(sessionID string, endedAt time.Time, directions []config.Direction) error {
	return c.markEnded(sessionID, endedAt, directions, true)
}

func (c *Catalog) markEnded(sessionID string, endedAt time.Time, directions []config.Direction, partial bool) error {
	dirsJSON, err := json.Marshal(directions)
	if err != nil {
		return fmt.Errorf("catalog: encoding directions: %w", err)
	}
	res, err := c.Exec(
		`UPDATE sessions SET ended_at = ?, directions_recorded = ?, partial = ? WHERE session_id = ?`,
		endedAt.UnixMicro(), string(dirsJSON), boolToInt(partial), sessionID,
	)
	if err != nil {
		return fmt.Errorf("catalog: updating session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: session %s not found", sessionID)
	}
	return nil
}

// ListSessions returns sessions ordered by most recent start. nameFilter
// is a substring match on the session name; empty matches everything.
func (c *Catalog) ListSessions(nameFilter string, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.Query(
		`SELECT session_id, name, subject_id, started_at, ended_at, partial, directions_recorded, library_fingerprint
		 FROM sessions WHERE name LIKE ? ORDER BY started_at DESC LIMIT ?`,
		"%"+nameFilter+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var startedUs int64
		var endedUs sql.NullInt64
		var partial int
		var dirsJSON string
		if err := rows.Scan(&r.SessionID, &r.Name, &r.SubjectID, &startedUs, &endedUs, &partial, &dirsJSON, &r.LibraryFingerprint); err != nil {
			return nil, fmt.Errorf("catalog: scanning session row: %w", err)
		}
		r.StartedAt = time.UnixMicro(startedUs).UTC()
		if endedUs.Valid {
			t := time.UnixMicro(endedUs.Int64).UTC()
			r.EndedAt = &t
		}
		r.Partial = partial != 0
		if err := json.Unmarshal([]byte(dirsJSON), &r.DirectionsRecorded); err != nil {
			return nil, fmt.Errorf("catalog: decoding directions for %s: %w", r.SessionID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
