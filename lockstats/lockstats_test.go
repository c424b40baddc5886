package lockstats

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/sugawarayuuta/sonnet"

	"github.com/johan718/rtems/ticketlock"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lockstats.json")
	body := `{"database_path":"/tmp/locks.db","contended_threshold":4}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabasePath != "/tmp/locks.db" || cfg.ContendedThreshold != 4 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("LoadConfig on missing file succeeded")
	}
}

func TestRecordThreshold(t *testing.T) {
	h := NewHarvester(Config{ContendedThreshold: 10})
	h.Record("q1", ticketlock.Stats{Acquisitions: 100, Contended: 5})
	if h.Len() != 0 {
		t.Fatalf("below-threshold sample recorded, Len = %d", h.Len())
	}
	h.Record("q2", ticketlock.Stats{Acquisitions: 100, Contended: 50, MaxSpin: 7})
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
}

func TestSnapshotJSON(t *testing.T) {
	h := NewHarvester(Config{})
	h.Record("mutex-a", ticketlock.Stats{Acquisitions: 3, Contended: 1, MaxSpin: 9})
	data, err := h.SnapshotJSON()
	if err != nil {
		t.Fatalf("SnapshotJSON: %v", err)
	}
	var back []Sample
	if err := sonnet.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal snapshot: %v", err)
	}
	if len(back) != 1 || back[0].Queue != "mutex-a" || back[0].MaxSpin != 9 {
		t.Fatalf("snapshot round trip = %+v", back)
	}
}

func TestPersistNoDatabase(t *testing.T) {
	h := NewHarvester(Config{})
	if err := h.Persist(); err != ErrNoDatabase {
		t.Fatalf("Persist without path = %v, want ErrNoDatabase", err)
	}
}

func TestPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	h := NewHarvester(Config{DatabasePath: path})
	h.Record("sem-1", ticketlock.Stats{Acquisitions: 10, Contended: 2, MaxSpin: 3})
	h.Record("sem-2", ticketlock.Stats{Acquisitions: 20, Contended: 4, MaxSpin: 6})
	if err := h.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if h.Len() != 0 {
		t.Fatalf("buffer not cleared, Len = %d", h.Len())
	}

	database, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	var count int
	if err := database.QueryRow(
		`SELECT COUNT(*) FROM lock_samples`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("persisted rows = %d, want 2", count)
	}
	var maxSpin uint64
	if err := database.QueryRow(
		`SELECT max_spin FROM lock_samples WHERE queue = ?`, "sem-2",
	).Scan(&maxSpin); err != nil {
		t.Fatalf("select: %v", err)
	}
	if maxSpin != 6 {
		t.Fatalf("max_spin = %d, want 6", maxSpin)
	}
}
