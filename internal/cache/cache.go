// Package cache persists finalized candle tables next to their sources so
// repeated ingestion of an unchanged file skips parsing entirely. Artifacts
// are keyed by source path, validated against source size and mtime, and
// checksummed; any doubt about an artifact reads as a miss.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/mr-tron/base58"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Artifact layout: magic, 8-byte xxhash64 of the payload, msgpack payload.
var magic = [4]byte{'Q', 'P', 'C', '1'}

// formatVersion is bumped whenever the envelope schema changes; mismatched
// artifacts are rewritten from a fresh parse.
const formatVersion = 1

const fileExt = ".qpc"

// column stores one float column at its narrowed or full width.
type column struct {
	F64 []float64 `msgpack:"f64,omitempty"`
	F32 []float32 `msgpack:"f32,omitempty"`
}

// envelope is the msgpack payload of one artifact.
type envelope struct {
	FormatVersion int      `msgpack:"format_version"`
	SourcePath    string   `msgpack:"source_path"`
	SourceSize    int64    `msgpack:"source_size"`
	SourceModNano int64    `msgpack:"source_mod_unix_nano"`
	Narrowed      []string `msgpack:"narrowed,omitempty"`
	TimestampMs   []int64  `msgpack:"timestamp_ms"`
	Open          column   `msgpack:"open"`
	High          column   `msgpack:"high"`
	Low           column   `msgpack:"low"`
	Close         column   `msgpack:"close"`
	Volume        column   `msgpack:"volume"`
	IsGap         []bool   `msgpack:"is_gap"`
}

// Store reads and writes candle table artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Key derives the artifact filename for a source path: base58 of the SHA256
// of the absolute path. Relative invocations of the same file map to one
// artifact.
func Key(sourcePath string) string {
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		abs = sourcePath
	}
	sum := sha256.Sum256([]byte(abs))
	return base58.Encode(sum[:]) + fileExt
}

// Path returns the artifact location for a source file.
func (s *Store) Path(sourcePath string) string {
	return filepath.Join(s.dir, Key(sourcePath))
}

// Lookup returns the cached table for the source if a fresh, intact artifact
// exists. Staleness (source size or mtime drifted), a missing artifact, a
// bad checksum, and a format mismatch all read as a miss; the caller
// re-parses and rewrites. Errors are reserved for unexpected I/O failures on
// the source itself.
func (s *Store) Lookup(sourcePath string) (*domain.CoreTable, bool, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, false, fmt.Errorf("stat source: %w", err)
	}

	raw, err := os.ReadFile(s.Path(sourcePath))
	if err != nil {
		return nil, false, nil
	}

	env, ok := decode(raw)
	if !ok {
		return nil, false, nil
	}
	if env.SourceSize != info.Size() || env.SourceModNano != info.ModTime().UnixNano() {
		return nil, false, nil
	}

	return env.table(), true, nil
}

// Write stores the finalized table for the source, atomically replacing any
// previous artifact. Narrowed columns are stored at float32 width.
func (s *Store) Write(sourcePath string, t *domain.CoreTable) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	narrowed := narrowedSet(t)
	env := &envelope{
		FormatVersion: formatVersion,
		SourcePath:    sourcePath,
		SourceSize:    info.Size(),
		SourceModNano: info.ModTime().UnixNano(),
		Narrowed:      t.Narrowed,
		TimestampMs:   t.TimestampMs,
		Open:          packColumn(t.Open, narrowed[domain.ColOpen]),
		High:          packColumn(t.High, narrowed[domain.ColHigh]),
		Low:           packColumn(t.Low, narrowed[domain.ColLow]),
		Close:         packColumn(t.Close, narrowed[domain.ColClose]),
		Volume:        packColumn(t.Volume, narrowed[domain.ColVolume]),
		IsGap:         t.IsGap,
	}

	payload, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}

	buf := make([]byte, 0, len(magic)+8+len(payload))
	buf = append(buf, magic[:]...)
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(payload))
	buf = append(buf, sum[:]...)
	buf = append(buf, payload...)

	tmp, err := os.CreateTemp(s.dir, Key(sourcePath)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(sourcePath)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// decode validates magic, checksum, and format version.
func decode(raw []byte) (*envelope, bool) {
	if len(raw) < len(magic)+8 {
		return nil, false
	}
	for i := range magic {
		if raw[i] != magic[i] {
			return nil, false
		}
	}
	want := binary.LittleEndian.Uint64(raw[len(magic) : len(magic)+8])
	payload := raw[len(magic)+8:]
	if xxhash.Sum64(payload) != want {
		return nil, false
	}

	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, false
	}
	if env.FormatVersion != formatVersion {
		return nil, false
	}
	return &env, true
}

// table reassembles the cached columns into a core table.
func (e *envelope) table() *domain.CoreTable {
	return &domain.CoreTable{
		TimestampMs: e.TimestampMs,
		Open:        e.Open.floats(),
		High:        e.High.floats(),
		Low:         e.Low.floats(),
		Close:       e.Close.floats(),
		Volume:      e.Volume.floats(),
		IsGap:       e.IsGap,
		Narrowed:    e.Narrowed,
	}
}

func packColumn(vals []float64, narrow bool) column {
	if !narrow {
		return column{F64: vals}
	}
	f32 := make([]float32, len(vals))
	for i, v := range vals {
		f32[i] = float32(v)
	}
	return column{F32: f32}
}

func (c column) floats() []float64 {
	if c.F64 != nil {
		return c.F64
	}
	out := make([]float64, len(c.F32))
	for i, v := range c.F32 {
		out[i] = float64(v)
	}
	return out
}

func narrowedSet(t *domain.CoreTable) map[string]bool {
	set := make(map[string]bool, len(t.Narrowed))
	for _, name := range t.Narrowed {
		set[name] = true
	}
	return set
}
