// Package groupfile implements the end device's store-and-forward buffer:
// size-bounded append-only files that batch typed payloads per group prefix
// until the application drains them over the radio.
package groupfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/lorawan"
)

// MaxGroups bounds the number of distinct group prefixes.
const MaxGroups = 32

var (
	// ErrBufferFull means the prefix has exhausted its file quota.
	ErrBufferFull = errors.New("group file quota exhausted")
	// ErrBadGroup means the prefix does not resolve to a configured group.
	ErrBadGroup = errors.New("invalid group prefix")
)

// Record is one stored payload read back from a group file.
type Record struct {
	Type lorawan.DataType
	Data []byte
}

// Config bounds the buffer.
type Config struct {
	Dir              string // directory holding the group files
	MaxFileSize      int    // hard upper bound on each file's byte size
	GroupLimit       int    // number of distinct group prefixes (<= MaxGroups)
	GroupPrefixLimit int    // maximum suffix count per prefix
}

// Buffer batches payloads into rotating group files. The per-group suffix
// counters live for the process lifetime, like the rest of the stack's
// state single-owner and main-loop only.
type Buffer struct {
	cfg      Config
	suffixes [MaxGroups]int
	log      zerolog.Logger
}

// New creates a buffer rooted at cfg.Dir.
func New(cfg Config, log zerolog.Logger) (*Buffer, error) {
	if cfg.GroupLimit < 1 || cfg.GroupLimit > MaxGroups {
		return nil, fmt.Errorf("group limit %d out of range", cfg.GroupLimit)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create group dir: %w", err)
	}
	return &Buffer{cfg: cfg, log: log}, nil
}

// path returns the file name for a prefix and suffix: <prefix>_<suffix>.bin.
func (b *Buffer) path(prefix string, suffix int) string {
	return filepath.Join(b.cfg.Dir, fmt.Sprintf("%s_%d.bin", prefix, suffix))
}

// groupIndex resolves the group index from the last character of the
// prefix, a 1-based digit.
func (b *Buffer) groupIndex(prefix string) (int, error) {
	if prefix == "" {
		return 0, ErrBadGroup
	}
	c := prefix[len(prefix)-1]
	idx := int(c) - '1'
	if c < '1' || c > '9' || idx >= b.cfg.GroupLimit {
		return 0, fmt.Errorf("%w: %q", ErrBadGroup, prefix)
	}
	return idx, nil
}

// StorePacket appends one record to the prefix's current file, rotating to
// the next suffix when the record would push the file past MaxFileSize.
// Returns ErrBufferFull once the prefix has no suffixes left.
func (b *Buffer) StorePacket(data []byte, dataType lorawan.DataType, prefix string) error {
	idx, err := b.groupIndex(prefix)
	if err != nil {
		return err
	}

	suffix := b.suffixes[idx]
	if suffix >= b.cfg.GroupPrefixLimit {
		return fmt.Errorf("%w: %s", ErrBufferFull, prefix)
	}

	recordLen := 2 + 1 + len(data)
	if recordLen > b.cfg.MaxFileSize {
		return fmt.Errorf("record of %d bytes exceeds max file size %d", recordLen, b.cfg.MaxFileSize)
	}
	size := b.fileSize(b.path(prefix, suffix))
	if size+recordLen > b.cfg.MaxFileSize {
		suffix++
		if suffix >= b.cfg.GroupPrefixLimit {
			return fmt.Errorf("%w: %s", ErrBufferFull, prefix)
		}
		b.suffixes[idx] = suffix
		b.log.Debug().Str("prefix", prefix).Int("suffix", suffix).Msg("rotated group file")
	}

	f, err := os.OpenFile(b.path(prefix, suffix), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open group file: %w", err)
	}
	defer f.Close()

	hdr := make([]byte, 3)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(data)+1))
	hdr[2] = byte(dataType)
	if _, err := f.Write(hdr); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write record data: %w", err)
	}
	return nil
}

func (b *Buffer) fileSize(path string) int {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return int(info.Size())
}

// ReadRecords reads every record back from one group file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	hdr := make([]byte, 3)
	for {
		if _, err := io.ReadFull(f, hdr); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return records, fmt.Errorf("read record header: %w", err)
		}
		entryLen := int(binary.LittleEndian.Uint16(hdr[0:2]))
		if entryLen < 1 {
			return records, fmt.Errorf("corrupt record length %d", entryLen)
		}
		data := make([]byte, entryLen-1)
		if _, err := io.ReadFull(f, data); err != nil {
			return records, fmt.Errorf("read record data: %w", err)
		}
		records = append(records, Record{Type: lorawan.DataType(hdr[2]), Data: data})
	}
}

// LoadFile reads one group file and flattens it into the drain plaintext:
// each record's dataType byte followed by its payload, with no per-record
// length prefix. The receiver re-splits by scanning for known type bytes.
func LoadFile(path string) ([]byte, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records in %s", path)
	}

	var out []byte
	for _, r := range records {
		out = append(out, byte(r.Type))
		out = append(out, r.Data...)
	}
	return out, nil
}

// Drain locates the lowest existing suffix for prefix and returns the
// flattened plaintext of that file and, when present, its successor.
// An empty result means nothing is buffered.
func (b *Buffer) Drain(prefix string) ([][]byte, error) {
	if _, err := b.groupIndex(prefix); err != nil {
		return nil, err
	}

	for suffix := 0; suffix < b.cfg.GroupPrefixLimit; suffix++ {
		first := b.path(prefix, suffix)
		if !b.exists(first) {
			continue
		}

		payload, err := LoadFile(first)
		if err != nil {
			return nil, err
		}
		out := [][]byte{payload}

		second := b.path(prefix, suffix+1)
		if suffix+1 < b.cfg.GroupPrefixLimit && b.exists(second) {
			next, err := LoadFile(second)
			if err != nil {
				return nil, err
			}
			out = append(out, next)
		}
		return out, nil
	}
	return nil, nil
}

func (b *Buffer) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
