package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ndemo/scalesep/internal/converter"
	"github.com/ndemo/scalesep/internal/costs"
	"github.com/ndemo/scalesep/internal/errors"
	"github.com/ndemo/scalesep/internal/util"
)

// Reader reads level blocks from an archive.
type Reader struct {
	dataFile  *os.File
	indexFile *os.File
	index     []IndexEntry
}

// NewReader opens an archive and loads its index into memory.
func NewReader(dataPath string) (*Reader, error) {
	dataFile, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	indexFile, err := os.Open(dataPath + ".idx")
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	reader := &Reader{
		dataFile:  dataFile,
		indexFile: indexFile,
	}
	if err := reader.loadIndex(); err != nil {
		reader.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	return reader, nil
}

func (r *Reader) loadIndex() error {
	for {
		var entry IndexEntry
		if err := binary.Read(r.indexFile, binary.LittleEndian, &entry.Level); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if err := binary.Read(r.indexFile, binary.LittleEndian, &entry.Offset); err != nil {
			return err
		}
		if err := binary.Read(r.indexFile, binary.LittleEndian, &entry.Size); err != nil {
			return err
		}
		if err := binary.Read(r.indexFile, binary.LittleEndian, &entry.Checksum); err != nil {
			return err
		}
		if int(entry.Level) != len(r.index) {
			return fmt.Errorf("index entry %d is out of order", entry.Level)
		}
		r.index = append(r.index, entry)
	}
	return nil
}

// NumLevels returns the number of levels stored in the archive.
func (r *Reader) NumLevels() int {
	return len(r.index)
}

// Level reads and validates the block for one level.
func (r *Reader) Level(level int) (*costs.LevelData, error) {
	if level < 0 || level >= len(r.index) {
		return nil, fmt.Errorf("level %d out of range: archive holds %d levels", level, len(r.index))
	}
	entry := r.index[level]

	if _, err := r.dataFile.Seek(entry.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to level %d: %w", level, err)
	}

	var blockSize int32
	if err := binary.Read(r.dataFile, binary.LittleEndian, &blockSize); err != nil {
		return nil, fmt.Errorf("failed to read block size: %w", err)
	}
	if blockSize != entry.Size {
		return nil, fmt.Errorf("level %d block size %d does not match index size %d", level, blockSize, entry.Size)
	}

	var checksum uint32
	if err := binary.Read(r.dataFile, binary.LittleEndian, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read checksum: %w", err)
	}

	data := make([]byte, blockSize)
	if _, err := io.ReadFull(r.dataFile, data); err != nil {
		return nil, fmt.Errorf("failed to read level block: %w", err)
	}

	if !util.ValidateChecksum(data, checksum) {
		return nil, errors.ChecksumFailed(checksum, util.ComputeChecksum(data)).
			WithDetail("level", level)
	}

	var payload converter.LevelPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal level %d: %w", level, err)
	}
	return converter.ToLevel(&payload)
}

// Close closes both files.
func (r *Reader) Close() error {
	var err error
	if e := r.dataFile.Close(); e != nil {
		err = e
	}
	if e := r.indexFile.Close(); e != nil {
		err = e
	}
	return err
}

// Read loads every level from the archive at path.
func Read(path string) ([]*costs.LevelData, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	levels := make([]*costs.LevelData, r.NumLevels())
	for i := range levels {
		d, err := r.Level(i)
		if err != nil {
			return nil, fmt.Errorf("reading level %d: %w", i, err)
		}
		levels[i] = d
	}
	return levels, nil
}
