package upload

import (
	"bytes"
	"compress/gzip"
	"os"
	"testing"
	"time"

	"github.com/ndpa-visualizer/backend/internal/storage"
)

func waitForJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	for i := 0; i < 50; i++ {
		job, ok := m.GetJob(id)
		if !ok {
			t.Fatalf("Job %s disappeared", id)
		}
		if job.Status == StatusComplete || job.Status == StatusError {
			return job
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("Job did not finish in time")
	return nil
}

func TestProcessJobAssemblesChunks(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	m := NewManager(t.TempDir(), store)

	uploadID := "upload-1"
	chunks := [][]byte{[]byte("<annotations>"), []byte("</annotations>")}
	for i, chunk := range chunks {
		if err := store.SaveChunkBytes(uploadID, i, chunk); err != nil {
			t.Fatalf("Failed to save chunk %d: %v", i, err)
		}
	}

	job := m.StartJob(uploadID, "slide.ndpa", len(chunks), 0, 0, "")
	done := waitForJob(t, m, job.ID)

	if done.Status != StatusComplete {
		t.Fatalf("Expected complete, got %s (%s)", done.Status, done.Error)
	}
	if done.Progress != 100 {
		t.Errorf("Expected progress 100, got %f", done.Progress)
	}
	if done.FileInfo == nil {
		t.Fatal("Expected file info on completed job")
	}
	if done.FileInfo.Size != int64(len("<annotations></annotations>")) {
		t.Errorf("Unexpected assembled size %d", done.FileInfo.Size)
	}

	path, err := store.GetFilePath(done.FileInfo.ID)
	if err != nil {
		t.Fatalf("Assembled file not registered: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read assembled file: %v", err)
	}
	if string(data) != "<annotations></annotations>" {
		t.Errorf("Unexpected content: %q", string(data))
	}
}

func TestProcessJobDecompressesGzip(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	m := NewManager(t.TempDir(), store)

	original := []byte("<annotations><ndpviewstate/></annotations>")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(original)
	gz.Close()

	uploadID := "upload-gz"
	if err := store.SaveChunkBytes(uploadID, 0, buf.Bytes()); err != nil {
		t.Fatalf("Failed to save chunk: %v", err)
	}

	job := m.StartJob(uploadID, "slide.ndpa", 1, int64(len(original)), int64(buf.Len()), "gzip")
	done := waitForJob(t, m, job.ID)

	if done.Status != StatusComplete {
		t.Fatalf("Expected complete, got %s (%s)", done.Status, done.Error)
	}
	if done.FileInfo.Size != int64(len(original)) {
		t.Errorf("Expected decompressed size %d, got %d", len(original), done.FileInfo.Size)
	}

	path, _ := store.GetFilePath(done.FileInfo.ID)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Errorf("Decompressed content mismatch: %q", string(data))
	}
}

func TestProcessJobMissingChunksFails(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	m := NewManager(t.TempDir(), store)

	job := m.StartJob("no-such-upload", "slide.ndpa", 2, 0, 0, "")
	done := waitForJob(t, m, job.ID)

	if done.Status != StatusError {
		t.Fatalf("Expected error status, got %s", done.Status)
	}
	if done.Error == "" {
		t.Error("Expected error message on failed job")
	}
}

func TestCleanupOldJobs(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	m := NewManager(t.TempDir(), store)

	job := m.StartJob("no-such-upload", "slide.ndpa", 1, 0, 0, "")
	waitForJob(t, m, job.ID)

	// Too young to be removed.
	m.CleanupOldJobs(time.Hour)
	if _, ok := m.GetJob(job.ID); !ok {
		t.Error("Job removed before max age")
	}

	m.CleanupOldJobs(0)
	if _, ok := m.GetJob(job.ID); ok {
		t.Error("Expected finished job to be cleaned up")
	}
}
