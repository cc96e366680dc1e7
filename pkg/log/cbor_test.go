package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventRoundTrip(t *testing.T) {
	rtt := 42 * time.Millisecond
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "frame",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-1",
				Direction:    DirectionOut,
				Layer:        LayerTransport,
				Category:     CategoryMessage,
				RemoteAddr:   "192.168.1.42:55443",
				Frame:        &FrameEvent{Size: 6, Data: []byte("{}\r\n"), Partial: true},
			},
		},
		{
			name: "response message",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-1",
				Direction:    DirectionIn,
				Layer:        LayerSession,
				Category:     CategoryMessage,
				Message: &MessageEvent{
					Type:      MessageTypeResponse,
					RequestID: 7,
					Method:    "set_power",
					Payload:   `{"id":7,"result":["ok"]}`,
					RoundTrip: &rtt,
				},
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-2",
				Layer:        LayerTransport,
				Category:     CategoryState,
				StateChange: &StateChangeEvent{
					Entity:   StateEntityConnection,
					OldState: "CONNECTING",
					NewState: "CONNECTED",
					Attempt:  3,
				},
			},
		},
		{
			name: "error",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-3",
				Layer:        LayerSession,
				Category:     CategoryError,
				Error:        &ErrorEventData{Layer: LayerSession, Message: "i/o timeout", Context: "read response"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}

			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}

			if !got.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.event.Timestamp)
			}
			if got.ConnectionID != tt.event.ConnectionID {
				t.Errorf("ConnectionID = %q, want %q", got.ConnectionID, tt.event.ConnectionID)
			}
			if got.Direction != tt.event.Direction || got.Layer != tt.event.Layer || got.Category != tt.event.Category {
				t.Errorf("header mismatch: got %v/%v/%v", got.Direction, got.Layer, got.Category)
			}

			switch {
			case tt.event.Frame != nil:
				if got.Frame == nil || !bytes.Equal(got.Frame.Data, tt.event.Frame.Data) || got.Frame.Partial != tt.event.Frame.Partial {
					t.Errorf("Frame = %+v, want %+v", got.Frame, tt.event.Frame)
				}
			case tt.event.Message != nil:
				if got.Message == nil {
					t.Fatal("Message is nil")
				}
				if got.Message.RequestID != 7 || got.Message.Method != "set_power" {
					t.Errorf("Message = %+v", got.Message)
				}
				if got.Message.RoundTrip == nil || *got.Message.RoundTrip != rtt {
					t.Errorf("RoundTrip = %v, want %v", got.Message.RoundTrip, rtt)
				}
			case tt.event.StateChange != nil:
				if got.StateChange == nil || *got.StateChange != *tt.event.StateChange {
					t.Errorf("StateChange = %+v, want %+v", got.StateChange, tt.event.StateChange)
				}
			case tt.event.Error != nil:
				if got.Error == nil || *got.Error != *tt.event.Error {
					t.Errorf("Error = %+v, want %+v", got.Error, tt.event.Error)
				}
			}
		})
	}
}

func TestDecodeEventGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestDecodeStream(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		data, err := EncodeEvent(Event{ConnectionID: "c", Message: &MessageEvent{RequestID: uint16(i + 1)}})
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		buf.Write(data)
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		e, err := decodeNext(dec)
		if err != nil {
			t.Fatalf("Decode %d failed: %v", i, err)
		}
		if e.Message == nil || e.Message.RequestID != uint16(i+1) {
			t.Errorf("event %d: Message = %+v", i, e.Message)
		}
	}
	if _, err := decodeNext(dec); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestEncodeEventBoundsPayload(t *testing.T) {
	long := strings.Repeat("x", MaxLogPayloadSize+100)
	msg := &MessageEvent{Type: MessageTypeResponse, RequestID: 1, Payload: long}

	data, err := EncodeEvent(Event{Timestamp: time.Now(), Message: msg})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if len(got.Message.Payload) != MaxLogPayloadSize || !got.Message.Truncated {
		t.Errorf("payload not bounded: len=%d truncated=%v", len(got.Message.Payload), got.Message.Truncated)
	}
	if len(msg.Payload) != MaxLogPayloadSize+100 || msg.Truncated {
		t.Error("caller's message was modified")
	}
}

func TestReaderTruncatedCapture(t *testing.T) {
	data, err := EncodeEvent(Event{Timestamp: time.Now(), ConnectionID: "conn-1"})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "cut.ylog")
	if err := os.WriteFile(path, append(data, data[:len(data)/2]...), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrTruncatedCapture) {
		t.Errorf("expected ErrTruncatedCapture, got %v", err)
	}
}

func TestDecodeEventTruncated(t *testing.T) {
	data, err := EncodeEvent(Event{Timestamp: time.Now(), ConnectionID: "conn-1"})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if _, err := DecodeEvent(data[:len(data)-3]); !errors.Is(err, ErrTruncatedCapture) {
		t.Errorf("expected ErrTruncatedCapture, got %v", err)
	}
}
