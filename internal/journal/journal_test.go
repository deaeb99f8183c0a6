package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetEvents(t *testing.T) {
	m := NewMemory()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.LogEvent(Event{Time: base.Add(2 * time.Minute), Type: TypeStage, Description: "b"}))
	require.NoError(t, m.LogEvent(Event{Time: base, Type: TypeStage, Description: "a"}))
	require.NoError(t, m.LogEvent(Event{Time: base.Add(time.Minute), Type: TypeError, Description: "boom"}))

	all, err := m.GetEvents("", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Description)
	assert.Equal(t, "b", all[2].Description)

	stages, _ := m.GetEvents(TypeStage, time.Time{}, time.Time{})
	assert.Len(t, stages, 2)

	window, _ := m.GetEvents("", base.Add(time.Minute), base.Add(2*time.Minute))
	require.Len(t, window, 1)
	assert.Equal(t, "boom", window[0].Description)
}

func TestStage(t *testing.T) {
	m := NewMemory()
	Stage(m, "optimize")(nil)
	Stage(m, "montecarlo")(errors.New("no data"))

	events, _ := m.GetEvents("", time.Time{}, time.Time{})
	require.Len(t, events, 4)
	assert.Equal(t, "optimize started", events[0].Description)
	assert.Equal(t, "optimize finished", events[1].Description)
	assert.Contains(t, events[1].Data, "elapsed")

	failed, _ := m.GetEvents(TypeError, time.Time{}, time.Time{})
	require.Len(t, failed, 1)
	assert.Equal(t, "no data", failed[0].Data["error"])
}
