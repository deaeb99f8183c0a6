// Package journal records the stages of a validation run.
package journal

import (
	"sort"
	"sync"
	"time"
)

// Event types.
const (
	TypeStage = "stage"
	TypeError = "error"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // stage or error
	Description string
	Data        map[string]any
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(event Event) error
	GetEvents(eventType string, start, end time.Time) ([]Event, error)
}

// Memory keeps events for the lifetime of the process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LogEvent(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// GetEvents returns the events of eventType with start <= Time < end in
// time order. An empty type matches every event and a zero bound is open.
func (m *Memory) GetEvents(eventType string, start, end time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if !start.IsZero() && e.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !e.Time.Before(end) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Stage journals the start of a named stage and returns a function that
// journals its end, with the elapsed time and the error if any.
func Stage(j Journaler, name string) func(err error) {
	started := time.Now()
	_ = j.LogEvent(Event{Time: started, Type: TypeStage, Description: name + " started"})
	return func(err error) {
		data := map[string]any{"stage": name, "elapsed": time.Since(started)}
		if err != nil {
			data["error"] = err.Error()
			_ = j.LogEvent(Event{Type: TypeError, Description: name + " failed", Data: data})
			return
		}
		_ = j.LogEvent(Event{Type: TypeStage, Description: name + " finished", Data: data})
	}
}
