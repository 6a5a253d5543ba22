package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/trace"
	"google.golang.org/api/iterator"
)

type csSource struct {
	bucket string
	prefix string
	client *storage.Client
}

func newCSSource(client *storage.Client, bucket, prefix string) traceSource {
	return &csSource{
		bucket: bucket,
		prefix: prefix,
		client: client,
	}
}

func (s *csSource) List(ctx context.Context, req listRequest) (*listResponse, error) {
	pageSize := req.pageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{
		Prefix: s.prefix,
	})

	pager := iterator.NewPager(it, pageSize, req.pageToken)
	var attrs []*storage.ObjectAttrs
	nextToken, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list objects",
			goerr.Value("bucket", s.bucket),
			goerr.Value("prefix", s.prefix),
		)
	}

	resp := &listResponse{
		nextPageToken: nextToken,
	}

	for _, attr := range attrs {
		if !strings.HasSuffix(attr.Name, ".json") {
			continue
		}
		traceID := strings.TrimSuffix(strings.TrimPrefix(attr.Name, s.prefix), ".json")
		// Skip directory-like entries
		if traceID == "" || strings.Contains(traceID, "/") {
			continue
		}

		resp.traces = append(resp.traces, traceSummary{
			TraceID:   traceID,
			Size:      attr.Size,
			UpdatedAt: attr.Updated,
		})
	}

	return resp, nil
}

func (s *csSource) Get(ctx context.Context, traceID string) (*trace.Snapshot, error) {
	if !validTraceID(traceID) {
		return nil, goerr.New("invalid trace ID", goerr.Value("traceID", traceID))
	}

	objectName := s.prefix + traceID + ".json"
	reader, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read trace object",
			goerr.Value("bucket", s.bucket),
			goerr.Value("object", objectName),
		)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read trace data",
			goerr.Value("bucket", s.bucket),
			goerr.Value("object", objectName),
		)
	}

	var snap trace.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, goerr.Wrap(err, "failed to parse trace data",
			goerr.Value("bucket", s.bucket),
			goerr.Value("object", objectName),
		)
	}

	return &snap, nil
}
