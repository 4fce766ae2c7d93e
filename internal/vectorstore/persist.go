package vectorstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Artifact names inside the index directory. Both are written after every
// mutation and loaded together.
const (
	VectorsFile = "index.bin"
	ChunksFile  = "chunks.json"
)

// CorruptSuffix marks artifacts that failed to load and were moved aside.
const CorruptSuffix = ".corrupt-"

var vectorsMagic = [4]byte{'I', 'B', 'F', 'X'}

const vectorsVersion uint32 = 1

// vectorsHeader precedes the little-endian float32 payload of index.bin.
type vectorsHeader struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint64
}

type chunksFile struct {
	Dimension int              `json:"dimension"`
	Ordinals  []string         `json:"ordinals"`
	Chunks    map[string]Chunk `json:"chunks"`
}

func saveSnapshot(dir string, dim int, s *snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	var vec bytes.Buffer
	hdr := vectorsHeader{Magic: vectorsMagic, Version: vectorsVersion, Dim: uint32(dim), Count: uint64(s.size())}
	if err := binary.Write(&vec, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("failed to encode index header: %w", err)
	}
	buf := make([]byte, 4)
	for _, f := range s.vectors {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		vec.Write(buf)
	}

	meta, err := json.Marshal(chunksFile{Dimension: dim, Ordinals: s.ordinals, Chunks: s.chunks})
	if err != nil {
		return fmt.Errorf("failed to encode chunk table: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, VectorsFile), vec.Bytes()); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, ChunksFile), meta)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// quarantineArtifacts renames the artifacts present in dir to
// <name>.corrupt-<timestamp> so the next persist cannot overwrite them.
// It returns the new paths.
func quarantineArtifacts(dir string, now time.Time) ([]string, error) {
	stamp := now.UTC().Format("20060102T150405")
	var moved []string
	for _, name := range []string{VectorsFile, ChunksFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		dst := path + CorruptSuffix + stamp
		if err := os.Rename(path, dst); err != nil {
			return moved, fmt.Errorf("failed to move %s aside: %w", name, err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// loadSnapshot returns (nil, nil) when neither artifact exists.
func loadSnapshot(dir string, dim int) (*snapshot, error) {
	vecPath := filepath.Join(dir, VectorsFile)
	metaPath := filepath.Join(dir, ChunksFile)

	vecData, vecErr := os.ReadFile(vecPath)
	metaData, metaErr := os.ReadFile(metaPath)

	vecMissing := errors.Is(vecErr, fs.ErrNotExist)
	metaMissing := errors.Is(metaErr, fs.ErrNotExist)
	switch {
	case vecMissing && metaMissing:
		return nil, nil
	case vecMissing:
		return nil, fmt.Errorf("%w: %s present without %s", ErrIndexLoad, ChunksFile, VectorsFile)
	case metaMissing:
		return nil, fmt.Errorf("%w: %s present without %s", ErrIndexLoad, VectorsFile, ChunksFile)
	case vecErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, vecErr)
	case metaErr != nil:
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, metaErr)
	}

	var hdr vectorsHeader
	r := bytes.NewReader(vecData)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrIndexLoad, err)
	}
	if hdr.Magic != vectorsMagic || hdr.Version != vectorsVersion {
		return nil, fmt.Errorf("%w: unrecognized %s format", ErrIndexLoad, VectorsFile)
	}
	if int(hdr.Dim) != dim {
		return nil, fmt.Errorf("%w: stored dimension %d, configured %d", ErrIndexLoad, hdr.Dim, dim)
	}
	payload := vecData[len(vecData)-r.Len():]
	if uint64(len(payload)) != hdr.Count*uint64(dim)*4 {
		return nil, fmt.Errorf("%w: %s truncated", ErrIndexLoad, VectorsFile)
	}

	var meta chunksFile
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrIndexLoad, ChunksFile, err)
	}
	if meta.Dimension != dim {
		return nil, fmt.Errorf("%w: chunk table dimension %d, configured %d", ErrIndexLoad, meta.Dimension, dim)
	}
	if uint64(len(meta.Ordinals)) != hdr.Count {
		return nil, fmt.Errorf("%w: %d vectors but %d ordinals", ErrIndexLoad, hdr.Count, len(meta.Ordinals))
	}
	known := make(map[string]struct{}, len(meta.Ordinals))
	for _, id := range meta.Ordinals {
		known[id] = struct{}{}
	}
	for id := range meta.Chunks {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: chunk %s has no vector", ErrIndexLoad, id)
		}
	}

	vectors := make([]float32, len(payload)/4)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	if meta.Chunks == nil {
		meta.Chunks = map[string]Chunk{}
	}

	return &snapshot{vectors: vectors, ordinals: meta.Ordinals, chunks: meta.Chunks}, nil
}
