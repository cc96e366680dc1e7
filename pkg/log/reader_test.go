package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ylog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionIn, Layer: LayerSession},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Category: CategoryState},
	}

	reader, err := NewReader(createTestLogFile(t, events))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	for i, e := range read {
		if e.ConnectionID != events[i].ConnectionID {
			t.Errorf("event %d: ConnectionID = %q, want %q", i, e.ConnectionID, events[i].ConnectionID)
		}
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionOut, Layer: LayerSession, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, RequestID: 1, Method: "set_power"}},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionIn, Layer: LayerSession, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeResponse, RequestID: 1, Method: "set_power"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "a", Direction: DirectionOut, Layer: LayerSession, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, RequestID: 2, Method: "set_bright"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", Layer: LayerTransport, Category: CategoryError,
			Error: &ErrorEventData{Message: "boom"}},
	}
	path := createTestLogFile(t, events)

	out := DirectionOut
	session := LayerSession
	errCat := CategoryError
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "none", filter: Filter{}, want: 4},
		{name: "connection", filter: Filter{ConnectionID: "b"}, want: 1},
		{name: "direction", filter: Filter{Direction: &out}, want: 2},
		{name: "layer", filter: Filter{Layer: &session}, want: 3},
		{name: "category", filter: Filter{Category: &errCat}, want: 1},
		{name: "method", filter: Filter{Method: "set_power"}, want: 2},
		{name: "time range", filter: Filter{TimeStart: &start, TimeEnd: &end}, want: 2},
		{name: "combined", filter: Filter{Direction: &out, Method: "set_bright"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.ylog")); err == nil {
		t.Error("expected error for missing file")
	}
}
