package insight

import (
	"encoding/json"
	"time"
)

// Activity event types recorded by the service.
const (
	EventTaskCreated   = "task_created"
	EventTaskRenamed   = "task_renamed"
	EventRoutineSaved  = "routine_saved"
	EventRoutineLoaded = "routine_loaded"
	EventGraphCleared  = "graph_cleared"
	EventTurnCompleted = "turn_completed"
)

// Event is one entry of a user's activity log.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"event_type"`
	Data        map[string]any `json:"event_data,omitempty"`
	TaskContext string         `json:"task_context,omitempty"`
	Duration    time.Duration  `json:"duration_ms"`
}

// MarshalJSON writes Duration as whole milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct {
		Alias
		DurationMs int64 `json:"duration_ms"`
	}{
		Alias:      Alias(e),
		DurationMs: e.Duration.Milliseconds(),
	})
}

// UnmarshalJSON reads Duration from whole milliseconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		*Alias
		DurationMs int64 `json:"duration_ms"`
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	e.Duration = time.Duration(aux.DurationMs) * time.Millisecond
	return nil
}

// Filter selects activity events.
type Filter struct {
	Type  string
	Since time.Time
	Until time.Time
	Limit int
}

// Matches checks if the event matches the filter criteria.
func (e Event) Matches(f Filter) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func cloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
