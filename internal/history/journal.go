package history

import (
	"context"
	"sync"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
	"go.uber.org/zap"
)

const defaultRetention = 30 * time.Minute

// Journal records every published event per round before handing it to the next
// broadcaster. It implements round.Broadcaster and round.EventLog.
//
// When a round finishes its journal leaves memory: with an archive directory it is
// written to disk first and later reads load the archive, otherwise it is kept for the
// retention period and then dropped by Sweep.
type Journal struct {
	next      round.Broadcaster
	limit     int
	saveDir   string
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.RWMutex
	replays map[string]*Replay
	ended   map[string]time.Time
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithRetention sets how long finished rounds stay in memory when nothing is archived.
func WithRetention(d time.Duration) JournalOption {
	return func(j *Journal) {
		if d > 0 {
			j.retention = d
		}
	}
}

// WithClock overrides the time source used for retention.
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJournal creates a journal keeping at most limit events per round. An empty
// saveDir disables archiving.
func NewJournal(next round.Broadcaster, limit int, saveDir string, logger *zap.Logger, opts ...JournalOption) *Journal {
	if next == nil {
		next = round.NopBroadcaster{}
	}
	j := &Journal{
		next:      next,
		limit:     limit,
		saveDir:   saveDir,
		retention: defaultRetention,
		now:       time.Now,
		logger:    logger,
		replays:   make(map[string]*Replay),
		ended:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Publish implements round.Broadcaster.
func (j *Journal) Publish(ctx context.Context, room string, ev round.Event) {
	j.Record(ev)
	if ev.Type == round.EventGameFinished {
		j.finish(ev.RoundID)
	}
	j.next.Publish(ctx, room, ev)
}

// finish archives and evicts a finished round, or schedules it for eviction.
func (j *Journal) finish(roundID string) {
	if j.saveDir != "" {
		err := j.Archive(roundID)
		if err == nil {
			j.Forget(roundID)
			return
		}
		j.logger.Warn("failed to archive round",
			zap.String("round_id", roundID),
			zap.Error(err))
	}

	j.mu.Lock()
	j.ended[roundID] = j.now()
	j.mu.Unlock()
}

// Record appends ev to its round's journal. A round that was archived earlier, for
// instance one being restarted, continues from its archive.
func (j *Journal) Record(ev round.Event) {
	entry, err := entryFromEvent(ev)
	if err != nil {
		j.logger.Warn("failed to journal event",
			zap.String("round_id", ev.RoundID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
		return
	}

	replay := j.replayFor(ev.RoundID)
	replay.Record(entry, j.limit)
}

func (j *Journal) replayFor(roundID string) *Replay {
	j.mu.Lock()
	delete(j.ended, roundID)
	replay, ok := j.replays[roundID]
	j.mu.Unlock()
	if ok {
		return replay
	}

	fresh := NewReplay(roundID)
	if j.saveDir != "" {
		if archived, err := LoadReplayFromFile(j.saveDir, roundID); err == nil {
			fresh = archived
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if replay, ok := j.replays[roundID]; ok {
		return replay
	}
	j.replays[roundID] = fresh
	return fresh
}

// Replay returns the in-memory journal of a round, falling back to its archive.
func (j *Journal) Replay(roundID string) (*Replay, bool) {
	j.mu.RLock()
	replay, ok := j.replays[roundID]
	j.mu.RUnlock()
	if ok {
		return replay, true
	}
	if j.saveDir == "" {
		return nil, false
	}

	replay, err := LoadReplayFromFile(j.saveDir, roundID)
	if err != nil {
		return nil, false
	}
	return replay, true
}

// Events implements round.EventLog.
func (j *Journal) Events(roundID string) []round.Event {
	replay, ok := j.Replay(roundID)
	if !ok {
		return nil
	}
	events, err := replay.Events()
	if err != nil {
		j.logger.Warn("skipped undecodable journal entries",
			zap.String("round_id", roundID),
			zap.Error(err))
	}
	return events
}

// Archive writes the journal of roundID to the archive directory.
func (j *Journal) Archive(roundID string) error {
	j.mu.RLock()
	replay, ok := j.replays[roundID]
	j.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := replay.SaveToFile(j.saveDir); err != nil {
		return err
	}
	j.logger.Debug("round archived",
		zap.String("round_id", roundID),
		zap.Int("events", replay.Size()))
	return nil
}

// Forget drops the in-memory journal of a round. Archived copies stay readable.
func (j *Journal) Forget(roundID string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.replays, roundID)
	delete(j.ended, roundID)
}

// Sweep drops finished rounds whose retention has elapsed and returns how many it dropped.
func (j *Journal) Sweep() int {
	cutoff := j.now().Add(-j.retention)

	j.mu.Lock()
	defer j.mu.Unlock()

	dropped := 0
	for id, at := range j.ended {
		if at.After(cutoff) {
			continue
		}
		delete(j.replays, id)
		delete(j.ended, id)
		dropped++
	}
	return dropped
}

// Run sweeps every interval until ctx ends.
func (j *Journal) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.Debug("evicted finished round journals", zap.Int("rounds", n))
			}
		}
	}
}

// Rounds returns the number of rounds held in memory.
func (j *Journal) Rounds() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.replays)
}
