// ════════════════════════════════════════════════════════════════════════════════════════════════
// Lock Contention Harvester
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Queue-Lock Profiling Persistence
//
// Description:
//   Offline profiling support for the thread queue core. Collects ticket
//   lock contention snapshots per queue, serializes them to JSON for live
//   inspection and persists batches to SQLite for post-mortem analysis.
//
// Notes:
//   - Strictly a cold path: snapshots are taken by tooling, never by the
//     blocking path itself
//   - Batched, transactional inserts; one statement prepared per flush
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package lockstats

import (
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"github.com/johan718/rtems/ticketlock"
)

// ErrNoDatabase is reported when persistence is attempted without a
// configured database path.
var ErrNoDatabase = errors.New("lockstats: no database path configured")

// Sample is one contention snapshot of one queue lock.
type Sample struct {
	Queue        string `json:"queue"`
	Acquisitions uint64 `json:"acquisitions"`
	Contended    uint64 `json:"contended"`
	MaxSpin      uint64 `json:"max_spin"`
	CapturedAt   int64  `json:"captured_at"` // Unix nanoseconds
}

// Config controls harvesting. ContendedThreshold drops snapshots whose
// contended acquisition count is below the threshold, keeping the batch
// focused on locks that actually matter.
type Config struct {
	DatabasePath       string `json:"database_path"`
	ContendedThreshold uint64 `json:"contended_threshold"`
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Harvester accumulates samples in memory until persisted. Not safe for
// concurrent use; profiling tooling drives it from a single goroutine.
type Harvester struct {
	cfg     Config
	samples []Sample
}

// NewHarvester creates an empty harvester.
func NewHarvester(cfg Config) *Harvester {
	return &Harvester{cfg: cfg}
}

// Record captures one lock snapshot under the given queue name. Snapshots
// below the contention threshold are dropped.
func (h *Harvester) Record(queue string, s ticketlock.Stats) {
	if s.Contended < h.cfg.ContendedThreshold {
		return
	}
	h.samples = append(h.samples, Sample{
		Queue:        queue,
		Acquisitions: s.Acquisitions,
		Contended:    s.Contended,
		MaxSpin:      s.MaxSpin,
		CapturedAt:   time.Now().UnixNano(),
	})
}

// Len returns the number of buffered samples.
func (h *Harvester) Len() int {
	return len(h.samples)
}

// SnapshotJSON serializes the buffered samples.
func (h *Harvester) SnapshotJSON() ([]byte, error) {
	return sonnet.Marshal(h.samples)
}

// Persist flushes the buffered samples to the configured SQLite database in
// one transaction and clears the buffer on success.
func (h *Harvester) Persist() error {
	if h.cfg.DatabasePath == "" {
		return ErrNoDatabase
	}
	database, err := sql.Open("sqlite3", h.cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	_, err = database.Exec(`CREATE TABLE IF NOT EXISTS lock_samples (
		queue TEXT NOT NULL,
		acquisitions INTEGER NOT NULL,
		contended INTEGER NOT NULL,
		max_spin INTEGER NOT NULL,
		captured_at INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}

	tx, err := database.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO lock_samples
		(queue, acquisitions, contended, max_spin, captured_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range h.samples {
		if _, err := stmt.Exec(
			s.Queue, s.Acquisitions, s.Contended, s.MaxSpin, s.CapturedAt,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	h.samples = h.samples[:0]
	return nil
}
