package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task is a single delayed unit of work. Data is opaque to the scheduler and
// handed to the handler unchanged.
type Task struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	ScheduledFor time.Time
	Status       Status
	CompletedAt  *time.Time
	Data         map[string]any
}

// Due reports whether the task is pending and its due time has been reached.
func (t Task) Due(now time.Time) bool {
	return t.Status == StatusPending && !now.Before(t.ScheduledFor)
}

// Clone returns a copy that shares nothing mutable with t except nested
// values inside Data.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.Data != nil {
		c.Data = make(map[string]any, len(t.Data))
		for k, v := range t.Data {
			c.Data[k] = v
		}
	}
	return c
}

type taskJSON struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	CreatedAt    string         `json:"created_at"`
	ScheduledFor string         `json:"scheduled_for"`
	Status       Status         `json:"status"`
	Data         map[string]any `json:"data"`
	CompletedAt  string         `json:"completed_at,omitempty"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	w := taskJSON{
		ID:           t.ID,
		Name:         t.Name,
		CreatedAt:    FormatTime(t.CreatedAt),
		ScheduledFor: FormatTime(t.ScheduledFor),
		Status:       t.Status,
		Data:         t.Data,
	}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	if t.CompletedAt != nil {
		w.CompletedAt = FormatTime(*t.CompletedAt)
	}
	return json.Marshal(w)
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var w taskJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	created, err := ParseTime(w.CreatedAt)
	if err != nil {
		return err
	}
	scheduled, err := ParseTime(w.ScheduledFor)
	if err != nil {
		return err
	}
	*t = Task{
		ID:           w.ID,
		Name:         w.Name,
		CreatedAt:    created,
		ScheduledFor: scheduled,
		Status:       w.Status,
		Data:         w.Data,
	}
	if t.Data == nil {
		t.Data = map[string]any{}
	}
	if w.CompletedAt != "" {
		at, err := ParseTime(w.CompletedAt)
		if err != nil {
			return err
		}
		t.CompletedAt = &at
	}
	return nil
}
