// Package seeder implements the chunk-serving role: local file ingest into
// a fixed-size ChunkMap, tracker registration and heartbeating, and the
// per-connection GET handler.
package seeder

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileChunks is one ingested file: its ordered, fixed-size chunk slices and
// the parallel SHA-256 digest vector a Leecher needs before it can trust any
// chunk it downloads. Immutable once Ingest returns — reads are lock-free.
type FileChunks struct {
	Chunks [][]byte
	Hashes [][32]byte
}

// ChunkMap is the Seeder's owned mapping of file name to its chunk set. It
// is written once per file during ingest, then read-only, matching the
// concurrency model's "no lock needed on the hot path" for ChunkMap reads.
type ChunkMap struct {
	mu    sync.RWMutex
	files map[string]*FileChunks
}

// NewChunkMap returns an empty ChunkMap.
func NewChunkMap() *ChunkMap {
	return &ChunkMap{files: make(map[string]*FileChunks)}
}

type chunkJob struct {
	index int
	data  []byte
}

type chunkResult struct {
	index int
	hash  [32]byte
}

// Ingest splits the file at path into fixed-size chunks (the final chunk
// may be shorter, never empty), hashes each chunk in parallel across a
// bounded worker pool, and stores the result under fileName. Grounded on
// the teacher's generatePieces: a buffered job channel feeding numWorkers
// goroutines, each hashing one unit independently and sending its result
// over a results channel to a single collector goroutine.
func (c *ChunkMap) Ingest(fileName, path string, chunkSize int, numWorkers int) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("seeder: chunk size must be positive, got %d", chunkSize)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	const maxWorkers = 16
	if numWorkers > maxWorkers {
		numWorkers = maxWorkers
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("seeder: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("seeder: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("seeder: %s is empty", path)
	}

	chunkCount := int((info.Size() + int64(chunkSize) - 1) / int64(chunkSize))
	chunks := make([][]byte, chunkCount)
	hashes := make([][32]byte, chunkCount)

	jobs := make(chan chunkJob, numWorkers*2)
	results := make(chan chunkResult, numWorkers*2)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- chunkResult{index: job.index, hash: sha256.Sum256(job.data)}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for r := range results {
			hashes[r.index] = r.hash
		}
		close(done)
	}()

	var readErr error
	for i := 0; i < chunkCount; i++ {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			readErr = fmt.Errorf("seeder: read chunk %d of %s: %w", i, path, err)
			break
		}
		chunks[i] = buf[:n]
		jobs <- chunkJob{index: i, data: chunks[i]}
	}
	close(jobs)
	wg.Wait()
	close(results)
	<-done

	if readErr != nil {
		return 0, readErr
	}

	c.mu.Lock()
	c.files[fileName] = &FileChunks{Chunks: chunks, Hashes: hashes}
	c.mu.Unlock()

	return chunkCount, nil
}

// Get returns chunk index of fileName. Lock-free on the read path beyond
// the map lookup itself: chunk byte slices are never mutated after Ingest.
func (c *ChunkMap) Get(fileName string, index uint32) ([]byte, error) {
	c.mu.RLock()
	fc, ok := c.files[fileName]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("seeder: unknown file %q", fileName)
	}
	if int(index) >= len(fc.Chunks) {
		return nil, fmt.Errorf("seeder: chunk index %d out of range for %q (chunk_count=%d)", index, fileName, len(fc.Chunks))
	}
	return fc.Chunks[index], nil
}

// ChunkCount returns the number of chunks fileName was split into.
func (c *ChunkMap) ChunkCount(fileName string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fc, ok := c.files[fileName]
	if !ok {
		return 0, false
	}
	return len(fc.Chunks), true
}

// Hashes returns the ordered SHA-256 digest vector for fileName.
func (c *ChunkMap) Hashes(fileName string) ([][32]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fc, ok := c.files[fileName]
	if !ok {
		return nil, false
	}
	return fc.Hashes, true
}

// Files returns the names of every file currently ingested, for registering
// with the tracker and for the debug endpoint.
func (c *ChunkMap) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.files))
	for name := range c.files {
		out = append(out, name)
	}
	return out
}
