package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/trace"
)

type localSource struct {
	dir string
}

func newLocalSource(dir string) traceSource {
	return &localSource{dir: dir}
}

func (s *localSource) List(ctx context.Context, req listRequest) (*listResponse, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing collected yet.
			return &listResponse{}, nil
		}
		return nil, goerr.Wrap(err, "failed to read directory", goerr.Value("dir", s.dir))
	}

	type fileEntry struct {
		name string
		info os.FileInfo
	}
	var files []fileEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{name: e.Name(), info: info})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})

	startIdx := 0
	if req.pageToken != "" {
		lastFile, err := decodePageToken(req.pageToken)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid page token")
		}
		startIdx = sort.Search(len(files), func(i int) bool {
			return files[i].name > lastFile
		})
	}

	pageSize := req.pageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	endIdx := min(startIdx+pageSize, len(files))

	resp := &listResponse{}
	for _, f := range files[startIdx:endIdx] {
		resp.traces = append(resp.traces, traceSummary{
			TraceID:   strings.TrimSuffix(f.name, ".json"),
			Size:      f.info.Size(),
			UpdatedAt: f.info.ModTime(),
		})
	}

	if endIdx < len(files) {
		resp.nextPageToken = encodePageToken(files[endIdx-1].name)
	}

	return resp, nil
}

func (s *localSource) Get(ctx context.Context, traceID string) (*trace.Snapshot, error) {
	if !validTraceID(traceID) {
		return nil, goerr.New("invalid trace ID", goerr.Value("traceID", traceID))
	}
	filePath := filepath.Join(s.dir, traceID+".json")

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(err, "trace not found", goerr.Value("traceID", traceID))
		}
		return nil, goerr.Wrap(err, "failed to read trace file", goerr.Value("traceID", traceID))
	}

	var snap trace.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, goerr.Wrap(err, "failed to parse trace file", goerr.Value("traceID", traceID))
	}

	return &snap, nil
}

// validTraceID rejects IDs that could escape the storage directory or
// prefix.
func validTraceID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func encodePageToken(fileName string) string {
	return base64.URLEncoding.EncodeToString([]byte(fileName))
}

func decodePageToken(token string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", goerr.Wrap(err, "failed to decode page token")
	}
	return string(b), nil
}
