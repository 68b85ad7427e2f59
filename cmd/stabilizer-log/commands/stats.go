package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Clients           map[string]*ClientStats
	Topics            map[string]int
	Frames            int
	FrameBytes        int
	Errors            int
	Truncated         bool
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ClientStats holds statistics for a single client id.
type ClientStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Remote    string
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Clients:           make(map[string]*ClientStats),
		Topics:            make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	stats.Truncated = reader.Truncated()

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	client, ok := s.Clients[event.ClientID]
	if !ok {
		client = &ClientStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Clients[event.ClientID] = client
	}
	client.Events++
	if event.Timestamp.After(client.LastSeen) {
		client.LastSeen = event.Timestamp
	}
	if event.RemoteAddr != "" {
		client.Remote = event.RemoteAddr
	}

	if event.Topic != "" {
		s.Topics[event.Topic]++
	}
	if event.Frame != nil {
		s.Frames++
		s.FrameBytes += event.Frame.Size
	}
	if event.Error != nil {
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Stabilizer Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerStack, log.LayerPubSub, log.LayerStream, log.LayerNetwork, log.LayerBroker} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if stats.Frames > 0 {
		fmt.Fprintf(w, "Stream Frames: %d (%d bytes)\n", stats.Frames, stats.FrameBytes)
		fmt.Fprintln(w)
	}

	if len(stats.Topics) > 0 {
		topics := make([]string, 0, len(stats.Topics))
		for topic := range stats.Topics {
			topics = append(topics, topic)
		}
		sort.Strings(topics)
		fmt.Fprintf(w, "Topics: %d\n", len(topics))
		for _, topic := range topics {
			fmt.Fprintf(w, "  %s: %d\n", topic, stats.Topics[topic])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Clients: %d\n", len(stats.Clients))
	if len(stats.Clients) > 0 {
		type clientInfo struct {
			id    string
			stats *ClientStats
		}
		clients := make([]clientInfo, 0, len(stats.Clients))
		for id, cs := range stats.Clients {
			clients = append(clients, clientInfo{id, cs})
		}
		sort.Slice(clients, func(i, j int) bool {
			return clients[i].stats.FirstSeen.Before(clients[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range clients {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenClientID(c.id), c.stats.Events, duration)
			if c.stats.Remote != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.Remote)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
	if stats.Truncated {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warning: log ends inside an event")
	}
}
