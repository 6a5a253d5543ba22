package trace

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// CloudStorageRepository persists snapshots as JSON objects in a Google
// Cloud Storage bucket.
type CloudStorageRepository struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewCloudStorageRepository creates a repository writing
// {prefix}{id}.json objects into bucket.
func NewCloudStorageRepository(client *storage.Client, bucket, prefix string) *CloudStorageRepository {
	return &CloudStorageRepository{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// ObjectName returns the object name a snapshot with the given ID is stored under.
func (r *CloudStorageRepository) ObjectName(id string) string {
	return r.prefix + id + ".json"
}

// Save uploads the snapshot.
func (r *CloudStorageRepository) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal trace", goerr.V("trace_id", snap.ID))
	}

	objectName := r.ObjectName(snap.ID)
	w := r.client.Bucket(r.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write trace object",
			goerr.V("bucket", r.bucket),
			goerr.V("object", objectName),
		)
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize trace object",
			goerr.V("bucket", r.bucket),
			goerr.V("object", objectName),
		)
	}

	return nil
}
