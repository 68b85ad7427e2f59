// Package commands implements the stabilizer-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

// eventType returns the label of the event's payload.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [client] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n", ts, shortenClientID(event.ClientID),
		event.Direction.String(), event.Layer.String(), eventType(event))

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	if event.Topic != "" {
		fmt.Fprintf(w, "  Topic: %s\n", event.Topic)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenClientID trims uuid connection ids to 8 characters. Device client
// ids are short enough to print whole.
func shortenClientID(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	fmt.Fprintf(w, "  Sequence: %d  Batches: %d\n", frame.Sequence, frame.Batches)
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.PayloadSize > 0 {
		fmt.Fprintf(w, "  Payload: %d bytes\n", msg.PayloadSize)
	}
	if msg.Retain {
		fmt.Fprintln(w, "  Retain: true")
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "stack":
		return log.LayerStack, nil
	case "pubsub":
		return log.LayerPubSub, nil
	case "stream":
		return log.LayerStream, nil
	case "network":
		return log.LayerNetwork, nil
	case "broker":
		return log.LayerBroker, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be stack, pubsub, stream, network, or broker)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}

// RunView prints the events of the log file at path that match filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	if reader.Truncated() {
		fmt.Fprintln(output, "(log ends inside an event)")
	}

	return nil
}
