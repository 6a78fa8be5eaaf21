package seeder

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestIngestSplitsAndHashesChunks(t *testing.T) {
	const chunkSize = 1024
	path := writeTempFile(t, chunkSize*3+100) // 3 full chunks + 1 short chunk

	cm := NewChunkMap()
	count, err := cm.Ingest("big.bin", path, chunkSize, 4)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if count != 4 {
		t.Fatalf("chunk count: want 4, got %d", count)
	}

	original, _ := os.ReadFile(path)
	var reassembled []byte
	for i := 0; i < count; i++ {
		chunk, err := cm.Get("big.bin", uint32(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if i < count-1 && len(chunk) != chunkSize {
			t.Fatalf("chunk %d: want full size %d, got %d", i, chunkSize, len(chunk))
		}
		if i == count-1 && (len(chunk) == 0 || len(chunk) >= chunkSize) {
			t.Fatalf("final chunk: want short and non-empty, got %d bytes", len(chunk))
		}
		reassembled = append(reassembled, chunk...)

		want := sha256.Sum256(chunk)
		hashes, _ := cm.Hashes("big.bin")
		if hashes[i] != want {
			t.Fatalf("hash mismatch at chunk %d", i)
		}
	}
	if !bytes.Equal(original, reassembled) {
		t.Fatal("reassembled bytes do not match original file")
	}
}

func TestGetUnknownFileOrIndex(t *testing.T) {
	path := writeTempFile(t, 100)
	cm := NewChunkMap()
	if _, err := cm.Ingest("f.bin", path, 1024, 2); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := cm.Get("ghost.bin", 0); err == nil {
		t.Fatal("Get on unknown file: want error")
	}
	if _, err := cm.Get("f.bin", 5); err == nil {
		t.Fatal("Get with out-of-range index: want error")
	}
}
