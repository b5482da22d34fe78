// Package ledger keeps the most recent optimization records: the measured
// resource gain of each completed healing action. The ledger is capped and
// evicts the oldest record first. Records are never edited.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/atomicfile"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// DefaultCapacity is the number of records retained.
const DefaultCapacity = 50

// Ledger is a capped, file-backed list of optimization records. With an
// empty path it is memory-only.
type Ledger struct {
	path     string
	capacity int
	logger   *zap.Logger

	mu      sync.RWMutex
	records []models.OptimizationRecord
}

// New creates a ledger persisted at path.
func New(path string, capacity int, logger *zap.Logger) *Ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		path:     path,
		capacity: capacity,
		logger:   logger,
		records:  make([]models.OptimizationRecord, 0, capacity),
	}
}

// Load restores records from the file, keeping only the newest capacity
// entries. A missing file leaves the ledger empty.
func (l *Ledger) Load() error {
	if l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	unlock := lockPath(l.path)
	defer unlock()

	records, found, err := l.readFile()
	if err != nil || !found {
		return err
	}
	l.records = records
	return nil
}

// Append adds rec, evicting the oldest record when full, and persists the
// result. The file is re-read first so that records appended by another
// Ledger on the same path are kept. If the write fails the record is
// dropped and the previous contents are kept.
func (l *Ledger) Append(rec models.OptimizationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.records
	if l.path != "" {
		unlock := lockPath(l.path)
		defer unlock()

		disk, found, err := l.readFile()
		switch {
		case err != nil:
			l.logger.Warn("Ledger file unreadable, appending to records in memory",
				zap.String("file", l.path),
				zap.Error(err))
		case found:
			base = disk
		}
	}

	next := make([]models.OptimizationRecord, 0, l.capacity)
	if len(base) >= l.capacity {
		next = append(next, base[len(base)-l.capacity+1:]...)
	} else {
		next = append(next, base...)
	}
	next = append(next, rec)

	if err := l.persist(next); err != nil {
		l.logger.Error("Failed to write optimization ledger, dropping record",
			zap.String("file", l.path),
			zap.String("process", rec.Process),
			zap.Error(err))
		return err
	}
	l.records = next
	return nil
}

// readFile returns the newest capacity records stored at l.path. found is
// false for a missing or empty file.
func (l *Ledger) readFile() (records []models.OptimizationRecord, found bool, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading ledger: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, false, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("parsing ledger %s: %w", l.path, err)
	}
	if len(records) > l.capacity {
		records = records[len(records)-l.capacity:]
	}
	return records, true, nil
}

// pathLocks serializes read-modify-write cycles of ledgers sharing a file
// within this process.
var pathLocks sync.Map

func lockPath(path string) (unlock func()) {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	v, _ := pathLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Recent returns the records in insertion order, oldest first.
func (l *Ledger) Recent() []models.OptimizationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.OptimizationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Capacity returns the maximum number of records held.
func (l *Ledger) Capacity() int { return l.capacity }

// Totals sums the gains of the records held.
type Totals struct {
	CPUGain float64
	MemGain float64
	Score   float64
}

// Total aggregates the gains of every record currently held.
func (l *Ledger) Total() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var t Totals
	for _, r := range l.records {
		t.CPUGain += r.CPUGain
		t.MemGain += r.MemGain
		t.Score += r.Score
	}
	return t
}

// persist must be called with l.mu held.
func (l *Ledger) persist(records []models.OptimizationRecord) error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	return atomicfile.WriteFile(l.path, append(data, '\n'), 0644)
}
