package trace_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tracebuf/trace"
)

func TestFileRepositorySave(t *testing.T) {
	dir := t.TempDir()
	repo := trace.NewFileRepository(dir)

	tr, _ := newTestTrace(t, trace.WithID("test-file-repo"))
	_, err := tr.AddGeneration(trace.GenerationInput{Name: "n", Input: "i", Output: "o", Model: "test-model"})
	gt.NoError(t, err).Required()

	gt.NoError(t, repo.Save(context.Background(), tr.Snapshot()))

	data, err := os.ReadFile(filepath.Join(dir, "test-file-repo.json"))
	gt.NoError(t, err).Required()

	var loaded trace.Snapshot
	gt.NoError(t, json.Unmarshal(data, &loaded)).Required()
	gt.Equal(t, loaded.ID, "test-file-repo")
	gt.A(t, loaded.Generations).Length(1)
	gt.Equal(t, loaded.Generations[0].Model, "test-model")
}

func TestFileRepositoryCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dead-letter")
	repo := trace.NewFileRepository(dir)

	tr, _ := newTestTrace(t)
	gt.NoError(t, repo.Save(context.Background(), tr.Snapshot()))

	_, err := os.Stat(filepath.Join(dir, tr.ID()+".json"))
	gt.NoError(t, err)
}

func TestCloudStorageRepositoryObjectName(t *testing.T) {
	repo := trace.NewCloudStorageRepository(nil, "bucket", "traces/dead/")
	gt.Equal(t, repo.ObjectName("abc"), "traces/dead/abc.json")
}
