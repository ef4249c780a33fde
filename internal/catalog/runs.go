package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Analysis run status values.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// AnalysisRunRow is one catalog entry for an analysis run over a session.
type AnalysisRunRow struct {
	RunID      string     `json:"run_id"`
	SessionID  string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	TauMs      float64    `json:"tau_ms"`
	NumAreas   int        `json:"num_areas"`
	Error      string     `json:"error,omitempty"`
}

// StartAnalysisRun inserts a running-state row and returns the run id.
func (c *Catalog) StartAnalysisRun(sessionID string, tauMs float64, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := c.Exec(
		`INSERT INTO analysis_runs (run_id, session_id, started_at, status, tau_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, startedAt.UnixMicro(), RunStatusRunning, tauMs,
	)
	if err != nil {
		return "", fmt.Errorf("catalog: inserting analysis run for %s: %w", sessionID, err)
	}
	return id, nil
}

// CompleteAnalysisRun marks a run complete with its area count.
func (c *Catalog) CompleteAnalysisRun(runID string, finishedAt time.Time, numAreas int) error {
	return c.finishRun(runID, finishedAt, RunStatusComplete, numAreas, "")
}

// FailAnalysisRun marks a run failed with the terminal error text.
func (c *Catalog) FailAnalysisRun(runID string, finishedAt time.Time, errText string) error {
	return c.finishRun(runID, finishedAt, RunStatusFailed, 0, errText)
}

func (c *Catalog) finishRun(runID string, finishedAt time.Time, status string, numAreas int, errText string) error {
	res, err := c.Exec(
		`UPDATE analysis_runs SET finished_at = ?, status = ?, num_areas = ?, error = ? WHERE run_id = ?`,
		finishedAt.UnixMicro(), status, numAreas, errText, runID,
	)
	if err != nil {
		return fmt.Errorf("catalog: updating analysis run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: analysis run %s not found", runID)
	}
	return nil
}

// GetAnalysisRun returns one run by id.
func (c *Catalog) GetAnalysisRun(runID string) (AnalysisRunRow, error) {
	row := c.QueryRow(
		`SELECT run_id, session_id, started_at, finished_at, status, tau_ms, num_areas, error
		 FROM analysis_runs WHERE run_id = ?`, runID,
	)
	var r AnalysisRunRow
	var startedUs int64
	var finishedUs sql.NullInt64
	err := row.Scan(&r.RunID, &r.SessionID, &startedUs, &finishedUs, &r.Status, &r.TauMs, &r.NumAreas, &r.Error)
	if err != nil {
		return AnalysisRunRow{}, fmt.Errorf("catalog: reading analysis run %s: %w", runID, err)
	}
	r.StartedAt = time.UnixMicro(startedUs).UTC()
	if finishedUs.Valid {
		t := time.UnixMicro(finishedUs.Int64).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}
