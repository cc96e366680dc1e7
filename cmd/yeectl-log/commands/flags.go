// Package commands implements the yeectl-log CLI commands.
package commands

import (
	"fmt"
	"time"

	"github.com/yeectl/yeectl-go/pkg/log"
)

// FilterOptions holds the filter flags shared by all commands.
type FilterOptions struct {
	ConnID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Method    string
}

// BuildFilter converts the flag values into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		Method:       opts.Method,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Layer != "" {
		l, ok := log.ParseLayer(opts.Layer)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid layer: %s (must be transport or session)", opts.Layer)
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, ok := log.ParseDirection(opts.Direction)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid direction: %s (must be in or out)", opts.Direction)
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, ok := log.ParseCategory(opts.Category)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid category: %s (must be message, state, or error)", opts.Category)
		}
		filter.Category = &c
	}

	return filter, nil
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// eventType returns a short label for the payload kind of the event.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}
