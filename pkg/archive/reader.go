package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/intel"
)

// ErrNoArchive is returned by Latest when a directory holds no archives.
var ErrNoArchive = errors.New("no archive found")

// Contents is the decoded input of an archived run.
type Contents struct {
	Flows       []flow.Record
	Enrichments []intel.Enrichment
}

// ReadAll reads every entry of the archive at path, decompressing data and
// verifying checksums.
func ReadAll(path string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	entries := make([]*Entry, 0)

	for {
		entry := &Entry{}

		if err := binary.Read(reader, binary.BigEndian, &entry.Seq); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		typeByte, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		entry.Type = RecordType(typeByte)

		var dataLen uint32
		if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
			return nil, err
		}

		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return nil, err
		}

		if err := binary.Read(reader, binary.BigEndian, &entry.Checksum); err != nil {
			return nil, err
		}
		if crc32.ChecksumIEEE(compressed) != entry.Checksum {
			return nil, fmt.Errorf("checksum mismatch for entry %d", entry.Seq)
		}

		entry.Data, err = snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress archive entry %d: %w", entry.Seq, err)
		}

		if err := binary.Read(reader, binary.BigEndian, &entry.Timestamp); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Read decodes the archive at path.
func Read(path string) (*Contents, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return nil, err
	}

	contents := &Contents{}
	for _, entry := range entries {
		switch entry.Type {
		case RecordFlow:
			var r flow.Record
			if err := json.Unmarshal(entry.Data, &r); err != nil {
				return nil, fmt.Errorf("decode flow entry %d: %w", entry.Seq, err)
			}
			contents.Flows = append(contents.Flows, r)
		case RecordEnrichment:
			var e intel.Enrichment
			if err := json.Unmarshal(entry.Data, &e); err != nil {
				return nil, fmt.Errorf("decode enrichment entry %d: %w", entry.Seq, err)
			}
			contents.Enrichments = append(contents.Enrichments, e)
		default:
			return nil, fmt.Errorf("entry %d: unknown record type %d", entry.Seq, entry.Type)
		}
	}
	return contents, nil
}

// Latest returns the most recently modified archive in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArchive, dir)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	candidates := make([]candidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return "", err
		}
		candidates = append(candidates, candidate{m, info.ModTime().UnixNano()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path > candidates[j].path
	})
	return candidates[0].path, nil
}
