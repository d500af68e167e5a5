// Package history journals published round events and archives finished rounds to disk.
package history

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
)

const replayVersion = 1

// Entry is one recorded event. The payload is kept as JSON so archives stay gob-safe.
type Entry struct {
	Type       string
	Payload    []byte
	OccurredAt time.Time
}

func entryFromEvent(ev round.Event) (Entry, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	return Entry{Type: string(ev.Type), Payload: payload, OccurredAt: ev.OccurredAt}, nil
}

// Event converts the entry back to a round event.
func (e Entry) Event(roundID string) (round.Event, error) {
	payload := map[string]any{}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return round.Event{}, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
		}
	}
	return round.Event{
		RoundID:    roundID,
		Type:       round.EventType(e.Type),
		Payload:    payload,
		OccurredAt: e.OccurredAt,
	}, nil
}

// Replay is the ordered event log of one round.
type Replay struct {
	RoundID string
	Entries []Entry
	mu      sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(roundID string) *Replay {
	return &Replay{
		RoundID: roundID,
		Entries: make([]Entry, 0),
	}
}

// Record appends an entry, keeping at most limit entries when limit is positive.
func (r *Replay) Record(e Entry, limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Entries = append(r.Entries, e)
	if limit > 0 && len(r.Entries) > limit {
		r.Entries = append([]Entry(nil), r.Entries[len(r.Entries)-limit:]...)
	}
}

// Size returns the number of recorded entries.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Entries)
}

// Events returns every entry as a round event. Entries that fail to decode are skipped
// and reported in the returned error.
func (r *Replay) Events() ([]round.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]round.Event, 0, len(r.Entries))
	var errs []error
	for i, e := range r.Entries {
		ev, err := e.Event(r.RoundID)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}

func replayPath(directory, roundID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", roundID))
}

// SaveToFile writes the replay as gzip-compressed gob to <directory>/<round>.replay.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(directory, r.RoundID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	encoder := gob.NewEncoder(gz)

	metadata := replayMetadata{
		RoundID:    r.RoundID,
		Timestamp:  time.Now(),
		Version:    replayVersion,
		EntryCount: len(r.Entries),
	}
	if err := encoder.Encode(&metadata); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range r.Entries {
		if err := encoder.Encode(&r.Entries[i]); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return os.Rename(tmp.Name(), replayPath(directory, r.RoundID))
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, roundID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, roundID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	decoder := gob.NewDecoder(gz)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.RoundID)
	for i := 0; i < metadata.EntryCount; i++ {
		var e Entry
		if err := decoder.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		replay.Entries = append(replay.Entries, e)
	}
	return replay, nil
}

type replayMetadata struct {
	RoundID    string
	Timestamp  time.Time
	Version    int
	EntryCount int
}
