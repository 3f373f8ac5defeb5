// Package restartmon periodically persists each E2E destination target's
// lowest contiguous committed byte offset, backed by an in-memory ordered KV
// (github.com/tidwall/buntdb) and flushed to a flat-file restart record so a
// later run can resume with `-restart offset N`.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package restartmon

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Source is the narrow view a Target exposes to the Restart Monitor.
type Source interface {
	TargetIndex() int
	TargetPath() string
	CommittedOffset() int64
}

func offsetKey(targetIndex int) string { return fmt.Sprintf("target:%04d:offset", targetIndex) }
func pathKey(targetIndex int) string   { return fmt.Sprintf("target:%04d:path", targetIndex) }

// Monitor owns the buntdb index and the flat-file mirror.
type Monitor struct {
	db       *buntdb.DB
	flatFile string
	interval time.Duration
	sources  []Source
}

// Open creates (or re-opens) the buntdb index at dbPath. Pass ":memory:" for
// a non-persistent index (e.g. tests, or a run that disables -restart).
func Open(dbPath string) (*buntdb.DB, error) {
	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, xerrors.Wrap(err, "restartmon: open index")
	}
	return db, nil
}

// New builds a Monitor that checkpoints sources every interval into db and
// mirrors the result to flatFile.
func New(db *buntdb.DB, interval time.Duration, flatFile string, sources []Source) *Monitor {
	return &Monitor{db: db, flatFile: flatFile, interval: interval, sources: sources}
}

// Run ticks every m.interval until ctx is canceled, persisting one
// checkpoint cycle per tick plus a final checkpoint on exit.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		m.interval = 5 * time.Second
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.checkpointOnce()
			return ctx.Err()
		case <-ticker.C:
			m.checkpointOnce()
		}
	}
}

func (m *Monitor) checkpointOnce() {
	if err := m.Checkpoint(); err != nil {
		nlog.Warningf("restartmon: checkpoint: %v", err)
	}
}

// Checkpoint persists every source's current committed offset into buntdb,
// then flushes the flat-file mirror.
func (m *Monitor) Checkpoint() error {
	err := m.db.Update(func(tx *buntdb.Tx) error {
		for _, s := range m.sources {
			idx := s.TargetIndex()
			if _, _, err := tx.Set(offsetKey(idx), strconv.FormatInt(s.CommittedOffset(), 10), nil); err != nil {
				return err
			}
			if _, _, err := tx.Set(pathKey(idx), s.TargetPath(), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(err, "restartmon: persist offsets")
	}
	if m.flatFile == "" {
		return nil
	}
	return m.flush()
}

// Record is one flat-file restart record: target index, path, and the
// resumable committed offset.
type Record struct {
	TargetIndex int
	Path        string
	Offset      int64
}

// flush writes the full, deterministically-ordered flat-file mirror.
func (m *Monitor) flush() error {
	records, err := m.Snapshot()
	if err != nil {
		return err
	}
	f, err := os.Create(m.flatFile)
	if err != nil {
		return xerrors.Wrap(err, "restartmon: create flat file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%d %s %d\n", r.TargetIndex, r.Path, r.Offset); err != nil {
			return xerrors.Wrap(err, "restartmon: write flat file")
		}
	}
	return w.Flush()
}

// Snapshot reads back every persisted record, sorted by target index.
func (m *Monitor) Snapshot() ([]Record, error) {
	byIndex := make(map[int]*Record)
	err := m.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var idx int
			var field string
			if _, err := fmt.Sscanf(key, "target:%04d:%s", &idx, &field); err != nil {
				return true
			}
			r, ok := byIndex[idx]
			if !ok {
				r = &Record{TargetIndex: idx}
				byIndex[idx] = r
			}
			switch field {
			case "offset":
				r.Offset, _ = strconv.ParseInt(value, 10, 64)
			case "path":
				r.Path = value
			}
			return true
		})
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "restartmon: snapshot")
	}
	out := make([]Record, 0, len(byIndex))
	for _, r := range byIndex {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetIndex < out[j].TargetIndex })
	return out, nil
}

// LoadOffset returns the previously-checkpointed committed offset for
// targetIndex, for a resumed run's `-restart offset` derivation.
func (m *Monitor) LoadOffset(targetIndex int) (int64, bool, error) {
	var offset int64
	found := false
	err := m.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(offsetKey(targetIndex))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		offset, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, xerrors.Wrap(err, "restartmon: load offset")
	}
	return offset, found, nil
}

// Close closes the underlying buntdb index.
func (m *Monitor) Close() error { return m.db.Close() }
