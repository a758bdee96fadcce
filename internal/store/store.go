package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	pzstd "github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/logging"
)

// Version is the cube layout version recorded in the store metadata.
const Version = "1.0"

// segmentsDir holds one Parquet file per appended batch.
const segmentsDir = "segments"

var log = logging.Component("store")

// Store is a local append-only cube store. It is single-writer: only the
// orchestrator appends, serialized by the batch barrier, so no locking
// beyond the struct's own mutex is needed.
type Store struct {
	mu sync.Mutex

	dir    string
	meta   *Meta
	level  int
	closed bool
}

// Create initializes a fresh store at dir, deleting any pre-existing store
// at the same destination first. The meta's encoding table is fixed from
// this point on.
func Create(dir string, meta *Meta, compressionLevel int) (*Store, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrapf(err, "remove existing store %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, segmentsDir), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store %s", dir)
	}

	s := &Store{dir: dir, meta: meta, level: compressionLevel}
	if err := s.writeMeta(); err != nil {
		return nil, err
	}

	log.Info("created store", "dir", dir)
	return s, nil
}

// Open opens an existing store for append or inspection.
func Open(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrStoreNotFound, "%s", dir)
		}
		return nil, errors.Wrapf(err, "open store %s", dir)
	}

	meta := &Meta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, errors.Wrapf(err, "parse store metadata %s", dir)
	}

	return &Store{dir: dir, meta: meta, level: 2}, nil
}

// Meta returns the store metadata.
func (s *Store) Meta() *Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// RecordCount returns the record-axis length written so far.
func (s *Store) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.RecordCount
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// SegmentPattern returns a glob matching every segment file, for SQL
// engines that read Parquet directly.
func (s *Store) SegmentPattern() string {
	return filepath.Join(s.dir, segmentsDir, "*.parquet")
}

// Append writes one batch of records as a new segment and extends the
// record axis. Appending is associative: N appends of one batch each and
// one append of the union yield the same record-axis length.
func (s *Store) Append(rows []CubeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrStoreClosed
	}
	if len(rows) == 0 {
		return errors.ErrEmptyBatch
	}

	name := fmt.Sprintf("%06d.parquet", len(s.meta.Segments))
	path := filepath.Join(s.dir, segmentsDir, name)

	if err := s.writeSegment(path, rows); err != nil {
		return err
	}

	s.meta.Segments = append(s.meta.Segments, name)
	s.meta.RecordCount += len(rows)
	s.meta.DateUpdated = time.Now().Format(timeLayout)

	if err := s.writeMeta(); err != nil {
		return err
	}

	log.Info("appended segment",
		"segment", name, "records", len(rows), "total", s.meta.RecordCount)
	return nil
}

// SetRejections records the run-wide rejection lists in the metadata. The
// lists grow monotonically over a run and are rewritten on every append.
func (s *Store) SetRejections(empty, duplicate []string, wrongProj map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta.SkippedEmpty = empty
	s.meta.SkippedDuplicate = duplicate
	s.meta.SkippedWrongProjection = wrongProj
}

// Close marks the store closed. Appends after Close fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writeMeta()
}

func (s *Store) writeSegment(path string, rows []CubeRow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create segment %s", path)
	}

	w := parquet.NewGenericWriter[CubeRow](f,
		parquet.Compression(codecForLevel(s.level)))

	if _, err := w.Write(rows); err != nil {
		f.Close()
		return errors.Wrapf(err, "write segment %s", path)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "close segment %s", path)
	}
	return f.Close()
}

// writeMeta persists meta.json via rename so readers never observe a
// partial file.
func (s *Store) writeMeta() error {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode store metadata")
	}

	tmp := filepath.Join(s.dir, metaFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write store metadata")
	}
	return os.Rename(tmp, filepath.Join(s.dir, metaFile))
}

func codecForLevel(level int) compress.Codec {
	switch {
	case level <= 2:
		return &pzstd.Codec{Level: pzstd.SpeedFastest}
	case level <= 5:
		return &pzstd.Codec{Level: pzstd.SpeedDefault}
	case level <= 8:
		return &pzstd.Codec{Level: pzstd.SpeedBetterCompression}
	default:
		return &pzstd.Codec{Level: pzstd.SpeedBestCompression}
	}
}
