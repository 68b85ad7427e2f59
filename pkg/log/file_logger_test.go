package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp: time.Now(),
		ClientID:  "stabilizer-00-11-22-33-44-55-settings",
		Direction: DirectionIn,
		Layer:     LayerPubSub,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntitySession,
			OldState: "CONNECTING",
			NewState: "CONNECTED",
		},
	}

	logger.Log(event)
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}

	if decoded.ClientID != event.ClientID {
		t.Errorf("ClientID: got %q, want %q", decoded.ClientID, event.ClientID)
	}
	if decoded.StateChange == nil || decoded.StateChange.NewState != "CONNECTED" {
		t.Errorf("StateChange: got %+v", decoded.StateChange)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ClientID: "c"})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	logger.Log(Event{ClientID: "late"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size = %d, want 0", info.Size())
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), ClientID: "worker"})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed: %v", err)
			}
			break
		}
		count++
	}
	if count != 200 {
		t.Errorf("got %d events, want 200", count)
	}
}

func TestFileLoggerFlushAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Log(Event{Timestamp: time.Now(), ClientID: "tlm"})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size before flush = %d, want 0", info.Size())
	}

	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if info, _ = os.Stat(path); info.Size() == 0 {
		t.Error("flush wrote nothing")
	}

	written, failed := logger.Stats()
	if written != 1 || failed != 0 {
		t.Errorf("Stats = %d, %d, want 1, 0", written, failed)
	}
}
