// Package archive persists fitted decomposition levels as checksummed
// block files. Each level is a JSON-encoded block framed with its size and
// a CRC32 checksum; a sidecar index file maps level numbers to offsets so
// a single level can be read without scanning the whole archive.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ndemo/scalesep/internal/converter"
	"github.com/ndemo/scalesep/internal/costs"
	"github.com/ndemo/scalesep/internal/util"
)

// IndexEntry locates a level block inside the archive data file.
type IndexEntry struct {
	Level    int32
	Offset   int64
	Size     int32
	Checksum uint32
}

// Writer appends level blocks to an archive.
type Writer struct {
	dataFile  *os.File
	indexFile *os.File
	offset    int64
	index     []IndexEntry
}

// NewWriter creates the archive data file and its sidecar index.
func NewWriter(filePath string) (*Writer, error) {
	dataFile, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	indexFile, err := os.Create(filePath + ".idx")
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}

	return &Writer{
		dataFile:  dataFile,
		indexFile: indexFile,
		index:     make([]IndexEntry, 0),
	}, nil
}

// WriteLevel appends one fitted level to the archive.
func (w *Writer) WriteLevel(d *costs.LevelData) error {
	data, err := json.Marshal(converter.FromLevel(d))
	if err != nil {
		return fmt.Errorf("failed to marshal level: %w", err)
	}

	checksum := util.ComputeChecksum(data)

	blockSize := int32(len(data))
	if err := binary.Write(w.dataFile, binary.LittleEndian, blockSize); err != nil {
		return fmt.Errorf("failed to write block size: %w", err)
	}
	if err := binary.Write(w.dataFile, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	n, err := w.dataFile.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write level block: %w", err)
	}

	w.index = append(w.index, IndexEntry{
		Level:    int32(len(w.index)),
		Offset:   w.offset,
		Size:     blockSize,
		Checksum: checksum,
	})

	// size field + checksum + data
	w.offset += int64(4 + 4 + n)

	return nil
}

// Finalize writes the index and syncs both files.
func (w *Writer) Finalize() error {
	for _, entry := range w.index {
		if err := w.writeIndexEntry(entry); err != nil {
			return fmt.Errorf("failed to write index entry: %w", err)
		}
	}

	if err := w.dataFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	if err := w.indexFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	return nil
}

func (w *Writer) writeIndexEntry(entry IndexEntry) error {
	if err := binary.Write(w.indexFile, binary.LittleEndian, entry.Level); err != nil {
		return err
	}
	if err := binary.Write(w.indexFile, binary.LittleEndian, entry.Offset); err != nil {
		return err
	}
	if err := binary.Write(w.indexFile, binary.LittleEndian, entry.Size); err != nil {
		return err
	}
	return binary.Write(w.indexFile, binary.LittleEndian, entry.Checksum)
}

// Size returns the number of bytes written to the data file so far.
func (w *Writer) Size() int64 {
	return w.offset
}

// Close closes both files.
func (w *Writer) Close() error {
	var err error
	if e := w.dataFile.Close(); e != nil {
		err = e
	}
	if e := w.indexFile.Close(); e != nil {
		err = e
	}
	return err
}

// Write persists a full set of levels to path in one shot.
func Write(path string, levels []*costs.LevelData) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	defer w.Close()

	for i, d := range levels {
		if err := w.WriteLevel(d); err != nil {
			return fmt.Errorf("writing level %d: %w", i, err)
		}
	}
	return w.Finalize()
}
