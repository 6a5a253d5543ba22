package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tracebuf"
	"github.com/m-mizutani/tracebuf/clock"
	main "github.com/m-mizutani/tracebuf/cmd/tracebuf"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

func newTestServer(t *testing.T, dir string) http.Handler {
	t.Helper()
	s, err := main.NewServer(
		main.WithCredential("secret"),
		main.WithTestSource(main.NewLocalSource(dir)),
		main.WithRepository(trace.NewFileRepository(dir)),
	)
	gt.NoError(t, err).Required()
	return s.Handler()
}

func snapshotJSON(t *testing.T, id string) []byte {
	t.Helper()
	tr, err := trace.New("chat", trace.WithID(id), trace.WithClock(clock.Fake(epoch)))
	gt.NoError(t, err).Required()
	_, err = tr.AddGeneration(trace.GenerationInput{
		Name: "completion", Input: "q", Output: "a", Model: "m",
		Usage: &trace.Usage{PromptTokens: 10, CompletionTokens: 5, Counters: map[string]float64{"cachedTokens": 2}},
	})
	gt.NoError(t, err).Required()
	gt.NoError(t, tr.Finish())

	data, err := json.Marshal(tr.Snapshot())
	gt.NoError(t, err).Required()
	return data
}

func post(h http.Handler, path, credential string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresCredential(t *testing.T) {
	dir := t.TempDir()
	_, err := main.NewServer(
		main.WithTestSource(main.NewLocalSource(dir)),
		main.WithRepository(trace.NewFileRepository(dir)),
	)
	gt.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, t.TempDir())

	rec := get(h, "/api/health")
	gt.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, "ok", resp["status"])
}

func TestHandleIngestTrace(t *testing.T) {
	dir := t.TempDir()
	h := newTestServer(t, dir)

	t.Run("accepts valid payload", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "secret", snapshotJSON(t, "trace-001"))
		gt.Equal(t, http.StatusAccepted, rec.Code)

		var resp main.IngestResponse
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		gt.Equal(t, 1, resp.Accepted)

		_, err := os.Stat(filepath.Join(dir, "trace-001.json"))
		gt.NoError(t, err)
	})

	t.Run("rejects missing credential", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "", snapshotJSON(t, "trace-002"))
		gt.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects wrong credential", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "other", snapshotJSON(t, "trace-002"))
		gt.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects payload violating schema", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "secret", []byte(`{"id":"trace-003","name":"x"}`))
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "secret", []byte(`{`))
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects path-like trace ID", func(t *testing.T) {
		rec := post(h, transport.SinglePath, "secret", snapshotJSON(t, "../escape"))
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get stored trace", func(t *testing.T) {
		rec := get(h, "/api/traces/trace-001")
		gt.Equal(t, http.StatusOK, rec.Code)

		var snap trace.Snapshot
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		gt.Equal(t, "trace-001", snap.ID)
		gt.Equal(t, 1, len(snap.Generations))
		gt.Equal(t, float64(2), snap.Generations[0].Usage.Counters["cachedTokens"])
	})
}

func TestHandleIngestBatch(t *testing.T) {
	dir := t.TempDir()
	h := newTestServer(t, dir)

	body, err := json.Marshal(map[string]any{
		"traces": []json.RawMessage{snapshotJSON(t, "trace-001"), snapshotJSON(t, "trace-002")},
	})
	gt.NoError(t, err).Required()

	rec := post(h, transport.BatchPath, "secret", body)
	gt.Equal(t, http.StatusAccepted, rec.Code)

	var resp main.IngestResponse
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, 2, resp.Accepted)

	rec = post(h, transport.BatchPath, "secret", []byte(`{"traces":[{"id":"x"}]}`))
	gt.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, transport.BatchPath, "wrong", body)
	gt.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleListTraces(t *testing.T) {
	dir := t.TempDir()
	seedTraces(t, dir, 3)
	h := newTestServer(t, dir)

	t.Run("list all traces", func(t *testing.T) {
		rec := get(h, "/api/traces")
		gt.Equal(t, http.StatusOK, rec.Code)

		var resp main.ListTracesResponse
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		gt.Equal(t, 3, len(resp.Traces))
	})

	t.Run("with page size", func(t *testing.T) {
		rec := get(h, "/api/traces?page_size=2")
		gt.Equal(t, http.StatusOK, rec.Code)

		var resp main.ListTracesResponse
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		gt.Equal(t, 2, len(resp.Traces))
		gt.True(t, resp.NextPageToken != "")
	})

	t.Run("invalid page size", func(t *testing.T) {
		rec := get(h, "/api/traces?page_size=abc")
		gt.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleGetTraceNotFound(t *testing.T) {
	h := newTestServer(t, t.TempDir())
	rec := get(h, "/api/traces/nonexistent")
	gt.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmitToCollector(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(newTestServer(t, dir))
	defer srv.Close()

	client, err := tracebuf.New("secret",
		tracebuf.WithEndpoint(srv.URL),
		tracebuf.WithHTTPClient(srv.Client()),
	)
	gt.NoError(t, err).Required()

	gt.NoError(t, main.EmitTraces(client, 3))
	gt.NoError(t, client.Shutdown(context.Background()))
	gt.A(t, client.Pending()).Length(0)

	src := main.NewLocalSource(dir)
	resp := gt.R1(src.List(context.Background(), 10, "")).NoError(t)
	gt.Equal(t, 3, len(resp.Traces))

	snap := gt.R1(src.Get(context.Background(), resp.Traces[0].TraceID)).NoError(t)
	gt.True(t, snap.Finished)
	gt.Equal(t, 1, len(snap.Generations))
	gt.Equal(t, 1, len(snap.Generations[0].Scores))
	gt.Equal(t, 1, len(snap.Spans))
	gt.Value(t, snap.Spans[0].Duration).NotNil()
	gt.Equal(t, 1, len(snap.Events))
}
