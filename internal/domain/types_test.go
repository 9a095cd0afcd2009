package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeZoneNaiveIsUTC(t *testing.T) {
	got, err := ParseTime("2024-03-01T12:30:00.250000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 250000000, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseTimeNormalizesOffset(t *testing.T) {
	got, err := ParseTime("2024-03-01T14:30:00+02:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseTimeAcceptsLegacyForms(t *testing.T) {
	for _, s := range []string{
		"2024-03-01T12:30:00Z",
		"2024-03-01T12:30:00+00:00",
		"2024-03-01 12:30:00",
		"2024-03-01T12:30:00",
	} {
		got, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)), s)
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestFormatTimeCarriesOffset(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-03-01T11:30:00.123456+00:00", FormatTime(at))
}

func TestTaskJSON(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := Task{
		ID:           "tsk_1",
		Name:         "report",
		CreatedAt:    created,
		ScheduledFor: created.Add(10 * time.Hour),
		Status:       StatusPending,
	}

	b, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "tsk_1",
		"name": "report",
		"created_at": "2024-03-01T12:00:00+00:00",
		"scheduled_for": "2024-03-01T22:00:00+00:00",
		"status": "pending",
		"data": {}
	}`, string(b))

	var legacy Task
	err = json.Unmarshal([]byte(`{
		"name": "old",
		"created_at": "2024-03-01T12:00:00",
		"scheduled_for": "2024-03-01T22:00:00",
		"status": "completed",
		"completed_at": "2024-03-01T22:00:05.5",
		"data": {"description": "legacy"}
	}`), &legacy)
	require.NoError(t, err)
	assert.Empty(t, legacy.ID)
	assert.Equal(t, StatusCompleted, legacy.Status)
	require.NotNil(t, legacy.CompletedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 22, 0, 5, 500000000, time.UTC), *legacy.CompletedAt)
	assert.Equal(t, "legacy", legacy.Data["description"])
}

func TestTaskDue(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := Task{Status: StatusPending, ScheduledFor: due}

	assert.False(t, task.Due(due.Add(-time.Second)))
	assert.True(t, task.Due(due))
	assert.True(t, task.Due(due.Add(time.Second)))

	task.Status = StatusCompleted
	assert.False(t, task.Due(due.Add(time.Hour)))
}

func TestTaskCloneDetachesCompletedAt(t *testing.T) {
	at := time.Now()
	task := Task{CompletedAt: &at, Data: map[string]any{"k": "v"}}
	c := task.Clone()
	*c.CompletedAt = at.Add(time.Hour)
	c.Data["k"] = "changed"

	assert.Equal(t, at, *task.CompletedAt)
	assert.Equal(t, "v", task.Data["k"])
}
