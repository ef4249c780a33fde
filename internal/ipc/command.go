// Package ipc implements the core's command and event channels as a
// typed message schema with a single dispatcher. The transport framing
// (stdout JSON lines, sockets) stays outside the core; this package only
// defines what a command means and what events come back.
package ipc

import (
	"encoding/json"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
)

// Command is one typed request to the core. Type selects the operation;
// the remaining fields are that operation's parameters and are ignored by
// every other operation.
type Command struct {
	Type string `json:"type"`

	// update_parameters / get_parameters
	Group string                 `json:"group,omitempty"`
	Patch map[string]interface{} `json:"patch,omitempty"`

	// pre_generate_stimulus
	Directions []config.Direction `json:"directions,omitempty"`

	// save_stimulus_library / load_stimulus_library
	Path  string `json:"path,omitempty"`
	Force bool   `json:"force,omitempty"`

	// start_acquisition
	Mode string `json:"mode,omitempty"`

	// start_analysis / render_report
	SessionPath string `json:"session_path,omitempty"`

	// get_sync_data
	WindowS float64 `json:"window_s,omitempty"`

	// list_sessions
	NameFilter string `json:"name_filter,omitempty"`
	Limit      int    `json:"limit,omitempty"`

	// get_analysis_run
	RunID string `json:"run_id,omitempty"`
}

// Reply is the synchronous response to one Command.
type Reply struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Error codes carried in Reply.Code so callers can branch without
// string-matching error text.
const (
	CodeUnknownCommand   = "UnknownCommand"
	CodeValidationFailed = "ValidationFailed"
	CodeAlreadyRunning   = "AlreadyRunning"
	CodeNotLoaded        = "NotLoaded"
	CodeLibraryMismatch  = "LibraryMismatch"
	CodeIoError          = "IoError"
	CodeNoCamera         = "HardwareUnavailable"
	CodeCatalogDisabled  = "CatalogDisabled"
	CodeNoFrame          = "NoFrame"
)

func ok(payload interface{}) Reply {
	return Reply{OK: true, Payload: payload}
}

func fail(code string, err error) Reply {
	return Reply{OK: false, Code: code, Error: err.Error()}
}

// Event is one message on the core's outbound event channel. Payload is
// event-type specific and already JSON-shaped.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// MarshalJSON flattens the payload next to the type tag so consumers see
// `{"type": "...", ...fields}` rather than a nested envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Type string `json:"type"`
	}
	head, err := json.Marshal(envelope{Type: e.Type})
	if err != nil {
		return nil, err
	}
	if e.Payload == nil {
		return head, nil
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	if len(body) <= 2 || body[0] != '{' {
		// Non-object payloads keep the envelope form.
		return json.Marshal(struct {
			Type    string      `json:"type"`
			Payload interface{} `json:"payload"`
		}{e.Type, e.Payload})
	}
	merged := append(head[:len(head)-1], ',')
	merged = append(merged, body[1:]...)
	return merged, nil
}
