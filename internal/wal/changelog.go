package wal

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sajjad-MoBe/MVCCStore/internal/kverr"
	"github.com/sajjad-MoBe/MVCCStore/internal/mvcc"
)

// ChangeRecord is one journaled mutation of a version table. A persistent
// back end can replay the stream to materialize the version chains.
type ChangeRecord struct {
	Op          string
	TableID     string
	RecordKey   string
	VersionKey  int64
	BeginTs     int64
	EndTs       int64
	TxID        int64
	MaxCommitTs int64
	Payload     []byte
	Timestamp   int64
}

// Config contains configuration for changelog management
type Config struct {
	MaxFileSize int64 // Maximum size of each changelog file in bytes
	MaxFiles    int   // Maximum number of changelog files to retain
}

// Metrics tracks operational metrics for the changelog
type Metrics struct {
	TotalEntries    int64
	CurrentFileSize int64
	RotationCount   int64
	ErrorCount      int64
}

// Manager appends change records to rotating files. It implements
// mvcc.Journal so it can be handed to a version database as its observer.
type Manager struct {
	config  Config
	dir     string
	current *os.File
	encoder *gob.Encoder
	seq     int
	metrics Metrics
	mutex   sync.Mutex
}

var _ mvcc.Journal = (*Manager)(nil)

// NewManager creates a changelog manager writing under dir.
func NewManager(dir string, config Config) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kverr.New(kverr.ErrorTypeStorage, "failed to create changelog directory", err)
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 64 << 20
	}

	m := &Manager{config: config, dir: dir}
	if err := m.rotate(); err != nil {
		return nil, kverr.New(kverr.ErrorTypeStorage, "failed to create initial changelog file", err)
	}
	return m, nil
}

// Record implements mvcc.Journal.
func (m *Manager) Record(op string, tableID string, entry mvcc.VersionEntry) {
	rec := ChangeRecord{
		Op:          op,
		TableID:     tableID,
		RecordKey:   entry.RecordKey,
		VersionKey:  entry.VersionKey,
		BeginTs:     entry.BeginTs,
		EndTs:       entry.EndTs,
		TxID:        entry.TxID,
		MaxCommitTs: entry.MaxCommitTs,
		Payload:     entry.Payload,
		Timestamp:   time.Now().UnixNano(),
	}
	if err := m.Append(&rec); err != nil {
		m.mutex.Lock()
		m.metrics.ErrorCount++
		m.mutex.Unlock()
	}
}

// Append writes one record and rotates the file when it exceeds the size
// limit.
func (m *Manager) Append(rec *ChangeRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current == nil {
		return kverr.New(kverr.ErrorTypeStorage, "changelog is closed", nil)
	}
	if err := m.encoder.Encode(rec); err != nil {
		return kverr.New(kverr.ErrorTypeStorage, "failed to encode record", err)
	}
	m.metrics.TotalEntries++

	if info, err := m.current.Stat(); err == nil {
		m.metrics.CurrentFileSize = info.Size()
		if info.Size() >= m.config.MaxFileSize {
			if err := m.rotateLocked(); err != nil {
				return kverr.New(kverr.ErrorTypeStorage, "failed to rotate changelog", err)
			}
		}
	}
	return nil
}

// GetMetrics returns a snapshot of the changelog metrics.
func (m *Manager) GetMetrics() Metrics {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.metrics
}

// Close flushes and closes the current file.
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	m.encoder = nil
	return err
}

func (m *Manager) rotate() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rotateLocked()
}

func (m *Manager) rotateLocked() error {
	if m.current != nil {
		if err := m.current.Close(); err != nil {
			return err
		}
		m.metrics.RotationCount++
	}

	m.seq++
	path := filepath.Join(m.dir, fmt.Sprintf("changelog_%06d.log", m.seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	m.current = f
	m.encoder = gob.NewEncoder(f)
	m.metrics.CurrentFileSize = 0

	if m.config.MaxFiles > 0 {
		m.pruneLocked()
	}
	return nil
}

func (m *Manager) pruneLocked() {
	pattern := filepath.Join(m.dir, "changelog_*.log")
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) <= m.config.MaxFiles {
		return
	}
	// Glob returns sorted paths and the sequence number is zero padded, so
	// the oldest files come first.
	for _, f := range files[:len(files)-m.config.MaxFiles] {
		os.Remove(f)
	}
}

// ReadAll decodes every record from every changelog file under dir, oldest
// first. Used by tests and by back ends replaying the stream.
func ReadAll(dir string) ([]ChangeRecord, error) {
	files, err := filepath.Glob(filepath.Join(dir, "changelog_*.log"))
	if err != nil {
		return nil, err
	}

	var out []ChangeRecord
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec := gob.NewDecoder(f)
		for {
			var rec ChangeRecord
			if err := dec.Decode(&rec); err != nil {
				break
			}
			out = append(out, rec)
		}
		f.Close()
	}
	return out, nil
}
