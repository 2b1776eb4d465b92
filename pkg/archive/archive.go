// Package archive records the inputs of a run (flow records and enrichment
// bundles) in a snappy-compressed append log so the graph can be rebuilt
// later without querying OpenSearch or the intelligence portal again.
package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/intel"
)

// Extension is the file extension of archive files.
const Extension = ".tga"

// RecordType identifies the payload of an archive entry.
type RecordType uint8

const (
	RecordFlow RecordType = iota + 1
	RecordEnrichment
)

// Entry is a single archive entry
type Entry struct {
	Seq       uint64
	Type      RecordType
	Data      []byte
	Checksum  uint32
	Timestamp int64
}

// Archive is an append-only, snappy-compressed record of one run.
type Archive struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	seq    uint64
	mu     sync.Mutex
	closed bool

	// Statistics
	bytesUncompressed uint64
	bytesCompressed   uint64
}

// Stats holds compression statistics
type Stats struct {
	Entries           uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
}

// Create creates a new archive for runID in dir.
func Create(dir, runID string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := filepath.Join(dir, runID+Extension)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	return &Archive{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Path returns the archive file path.
func (a *Archive) Path() string {
	return a.path
}

// AppendFlows appends one entry per flow record.
func (a *Archive) AppendFlows(records []flow.Record) error {
	for i := range records {
		if err := a.appendJSON(RecordFlow, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

// AppendEnrichments appends one entry per enrichment.
func (a *Archive) AppendEnrichments(enrichments []intel.Enrichment) error {
	for i := range enrichments {
		if err := a.appendJSON(RecordEnrichment, &enrichments[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) appendJSON(t RecordType, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode archive record: %w", err)
	}
	return a.Append(t, data)
}

// Append compresses data and appends it as a new entry.
func (a *Archive) Append(t RecordType, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	compressed := snappy.Encode(nil, data)
	entry := Entry{
		Seq:       a.seq + 1,
		Type:      t,
		Data:      compressed,
		Checksum:  crc32.ChecksumIEEE(compressed),
		Timestamp: time.Now().Unix(),
	}

	if err := writeEntry(a.writer, &entry); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}

	a.seq = entry.Seq
	a.bytesUncompressed += uint64(len(data))
	a.bytesCompressed += uint64(len(compressed))
	return nil
}

// writeEntry writes an entry in the format
// [Seq:8][Type:1][DataLen:4][Data:N][Checksum:4][Timestamp:8]
func writeEntry(w *bufio.Writer, entry *Entry) error {
	if err := binary.Write(w, binary.BigEndian, entry.Seq); err != nil {
		return err
	}
	if err := w.WriteByte(byte(entry.Type)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(entry.Data))); err != nil {
		return err
	}
	if _, err := w.Write(entry.Data); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, entry.Checksum); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, entry.Timestamp)
}

// Stats returns compression statistics
func (a *Archive) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Stats{
		Entries:           a.seq,
		BytesUncompressed: a.bytesUncompressed,
		BytesCompressed:   a.bytesCompressed,
	}
}

// Close flushes and closes the archive
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if err := a.writer.Flush(); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return err
	}
	return a.file.Close()
}

// Abort closes an unfinished archive and removes its file. It does nothing
// once the archive has been closed.
func (a *Archive) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	_ = a.file.Close()
	return os.Remove(a.path)
}
