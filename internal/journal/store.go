package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"agentrt/internal/filestore"
	"agentrt/internal/logging"
)

// Store is the single-writer, concurrently-readable row store for
// CycleLog records (spec.md §4.C). It is backed by an append-only file
// (the "cycles.db" of spec.md §6) replayed into an in-memory index on
// Load; writes are serialized by mu, reads take the read lock only.
type Store struct {
	path   string
	raw    RawWriter
	logger logging.Logger

	mu   sync.RWMutex
	rows map[string]CycleLog // cycle_id -> row (upsert semantics)
}

// New creates a Store backed by path (the row file) and raw (an optional
// secondary JSONL sink; pass journal.NopWriter() to disable).
func New(path string, raw RawWriter, logger logging.Logger) *Store {
	if raw == nil {
		raw = NopWriter()
	}
	return &Store{
		path:   path,
		raw:    raw,
		logger: logging.OrNop(logger),
		rows:   make(map[string]CycleLog),
	}
}

// Load replays the row file into memory. Safe to call once at startup.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row CycleLog
		if err := filestore.UnmarshalLenient(line, &row); err != nil {
			s.logger.Warn("journal: skipping unreadable row: %v", err)
			continue
		}
		s.rows[row.CycleID] = row // last write wins: upsert by cycle_id
	}
	return scanner.Err()
}

// LogCycle upserts a CycleLog row by cycle_id (spec.md §4.C log_cycle).
func (s *Store) LogCycle(row CycleLog) (bool, error) {
	if row.StateDiff == "" {
		row.StateDiff = renderDiff(row.StateBefore, row.StateAfter)
	}

	s.mu.Lock()
	s.rows[row.CycleID] = row
	s.mu.Unlock()

	if _, err := appendJSONLine(s.path, row); err != nil {
		return false, err
	}
	return true, s.raw.Write(row)
}

func appendJSONLine(path string, row CycleLog) ([]byte, error) {
	data, err := marshalLine(row)
	if err != nil {
		return nil, err
	}
	if err := filestore.EnsureParentDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, err = f.Write(data)
	return data, err
}

// GetCycle returns a single row by id.
func (s *Store) GetCycle(id string) (*CycleLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, false
	}
	return &row, true
}

// GetRecentCycles returns rows matching filter, ordered by timestamp
// descending, with limit/offset pagination (spec.md §4.C get_recent_cycles).
func (s *Store) GetRecentCycles(limit, offset int, filter Filter) []CycleLog {
	s.mu.RLock()
	all := make([]CycleLog, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	filtered := make([]CycleLog, 0, len(all))
	for _, row := range all {
		if filter.Action != "" && row.Action != filter.Action {
			continue
		}
		if filter.Success != nil && row.Success != *filter.Success {
			continue
		}
		if filter.StartTime != nil && row.Timestamp.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && row.Timestamp.After(*filter.EndTime) {
			continue
		}
		filtered = append(filtered, row)
	}

	if offset >= len(filtered) {
		return []CycleLog{}
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return filtered[offset:end]
}

// GetStats computes aggregate statistics over rows in [start, end]
// (spec.md §4.C get_stats). Nil bounds are unbounded.
func (s *Store) GetStats(start, end *time.Time) Stats {
	rows := s.GetRecentCycles(0, 0, Filter{StartTime: start, EndTime: end})

	stats := Stats{ActionCounts: make(map[string]int)}
	if len(rows) == 0 {
		return stats
	}

	var totalDuration, totalReward float64
	successCount := 0
	var earliest, latest time.Time
	for i, row := range rows {
		stats.ActionCounts[row.Action]++
		totalDuration += float64(row.DurationMS)
		totalReward += row.Reward
		if row.Success {
			successCount++
		}
		if i == 0 {
			earliest, latest = row.Timestamp, row.Timestamp
		}
		if row.Timestamp.Before(earliest) {
			earliest = row.Timestamp
		}
		if row.Timestamp.After(latest) {
			latest = row.Timestamp
		}
	}

	stats.TotalCycles = len(rows)
	stats.SuccessRatePct = 100 * float64(successCount) / float64(len(rows))
	stats.AvgDurationMS = totalDuration / float64(len(rows))
	stats.AvgReward = totalReward / float64(len(rows))
	stats.LastCycleAt = &latest

	span := latest.Sub(earliest).Hours()
	if span > 0 {
		stats.CyclesPerHour = float64(len(rows)) / span
	}

	type kv struct {
		action string
		count  int
	}
	counts := make([]kv, 0, len(stats.ActionCounts))
	for action, count := range stats.ActionCounts {
		counts = append(counts, kv{action, count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	top := 5
	if len(counts) < top {
		top = len(counts)
	}
	stats.TopActions = make([]ActionCount, top)
	for i := 0; i < top; i++ {
		stats.TopActions[i] = ActionCount{Action: counts[i].action, Count: counts[i].count}
	}

	return stats
}

// CleanupOldCycles deletes oldest rows until at most keepCount remain,
// rewriting the backing file (spec.md §4.C cleanup_old_cycles).
func (s *Store) CleanupOldCycles(keepCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepCount <= 0 {
		keepCount = 1000
	}
	if len(s.rows) <= keepCount {
		return 0, nil
	}

	all := make([]CycleLog, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	kept := all[:keepCount]
	removed := len(all) - keepCount

	s.rows = make(map[string]CycleLog, len(kept))
	for _, row := range kept {
		s.rows[row.CycleID] = row
	}

	if err := s.rewriteLocked(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) rewriteLocked(rows []CycleLog) error {
	tmp := s.path + ".compact.tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	for _, row := range rows {
		line, err := marshalLine(row)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(line); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func marshalLine(row CycleLog) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
