package main

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/m-mizutani/tracebuf/trace"
)

type apiError struct {
	Error string `json:"error"`
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (s *server) authorize(next http.HandlerFunc) http.HandlerFunc {
	want := []byte("Bearer " + s.credential)
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		next(w, r)
	}
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "failed to read payload")
		return nil, false
	}
	return data, true
}

func (s *server) handleIngestTrace(w http.ResponseWriter, r *http.Request) {
	data, ok := readPayload(w, r)
	if !ok {
		return
	}
	if err := s.validator.validateSnapshot(data); err != nil {
		slog.Warn("rejected trace payload", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "invalid trace payload")
		return
	}

	var snap trace.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trace payload")
		return
	}
	if !s.store(w, r, &snap) {
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{Accepted: 1})
}

func (s *server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	data, ok := readPayload(w, r)
	if !ok {
		return
	}
	if err := s.validator.validateBatch(data); err != nil {
		slog.Warn("rejected batch payload", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}

	var batch trace.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}
	for _, snap := range batch.Traces {
		if !s.store(w, r, snap) {
			return
		}
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{Accepted: len(batch.Traces)})
}

func (s *server) store(w http.ResponseWriter, r *http.Request, snap *trace.Snapshot) bool {
	if !validTraceID(snap.ID) {
		writeError(w, http.StatusBadRequest, "invalid trace ID")
		return false
	}
	if err := s.repo.Save(r.Context(), snap); err != nil {
		slog.Error("failed to store trace", slog.Any("error", err), slog.String("traceID", snap.ID))
		writeError(w, http.StatusInternalServerError, "failed to store trace")
		return false
	}
	return true
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listTracesResponse struct {
	Traces        []traceSummary `json:"traces"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (s *server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	pageSizeStr := r.URL.Query().Get("page_size")
	pageToken := r.URL.Query().Get("page_token")

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		n, err := strconv.Atoi(pageSizeStr)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid page_size parameter")
			return
		}
		pageSize = n
	}

	resp, err := s.source.List(r.Context(), listRequest{
		pageSize:  pageSize,
		pageToken: pageToken,
	})
	if err != nil {
		slog.Error("failed to list traces", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}

	traces := resp.traces
	if traces == nil {
		traces = []traceSummary{}
	}

	writeJSON(w, http.StatusOK, listTracesResponse{
		Traces:        traces,
		NextPageToken: resp.nextPageToken,
	})
}

func (s *server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("id")
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "trace ID is required")
		return
	}

	snap, err := s.source.Get(r.Context(), traceID)
	if err != nil {
		slog.Error("failed to get trace", slog.Any("error", err), slog.String("traceID", traceID))
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
