package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

const (
	defaultPageSize = 20
	maxPayloadSize  = 10 << 20
)

type serverOption func(*server)

func withAddr(addr string) serverOption {
	return func(s *server) {
		s.addr = addr
	}
}

func withCredential(credential string) serverOption {
	return func(s *server) {
		s.credential = credential
	}
}

func withSource(src traceSource) serverOption {
	return func(s *server) {
		s.source = src
	}
}

func withRepository(repo trace.Repository) serverOption {
	return func(s *server) {
		s.repo = repo
	}
}

type server struct {
	addr       string
	credential string
	source     traceSource
	repo       trace.Repository
	validator  *payloadValidator
	mux        *http.ServeMux
}

func newServer(opts ...serverOption) (*server, error) {
	validator, err := newPayloadValidator()
	if err != nil {
		return nil, err
	}

	s := &server{
		addr:      ":18900",
		validator: validator,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.credential == "" {
		return nil, goerr.New("collector credential is required")
	}
	if s.source == nil || s.repo == nil {
		return nil, goerr.New("collector storage is required")
	}

	s.setupRoutes()
	return s, nil
}

func (s *server) setupRoutes() {
	// Ingestion routes
	s.mux.HandleFunc("POST "+transport.SinglePath, s.authorize(s.handleIngestTrace))
	s.mux.HandleFunc("POST "+transport.BatchPath, s.authorize(s.handleIngestBatch))

	// API routes
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/traces", s.handleListTraces)
	s.mux.HandleFunc("GET /api/traces/{id}", s.handleGetTrace)
}

func (s *server) handler() http.Handler {
	return s.mux
}

func (s *server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.Value("addr", s.addr))
	}

	addr := listener.Addr().String()
	slog.Info("starting trace collector", slog.String("addr", addr))

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return goerr.Wrap(err, "server error")
	}

	return nil
}
