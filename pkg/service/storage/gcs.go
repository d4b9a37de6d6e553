package storage

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
)

// GCS writes objects to Google Cloud Storage
type GCS struct {
	client *storage.Client
}

var contentTypes = map[string]string{
	".jsonl": "application/x-ndjson",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var _ interfaces.BlobStorage = &GCS{}

// NewGCS creates a client using application default credentials
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Cloud Storage client")
	}
	return &GCS{client: client}, nil
}

// NewWriter returns a writer for gs://bucket/object. The object becomes visible when the writer is
// closed without error.
func (g *GCS) NewWriter(ctx context.Context, bucket, object string) (io.WriteCloser, error) {
	if bucket == "" || object == "" {
		return nil, goerr.New("bucket and object are required", goerr.V("bucket", bucket), goerr.V("object", object))
	}
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if ct, ok := contentTypes[path.Ext(object)]; ok {
		w.ContentType = ct
	}
	return &writer{w: w, bucket: bucket, object: object}, nil
}

func (g *GCS) Close() error {
	if err := g.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close Cloud Storage client")
	}
	return nil
}

type writer struct {
	w      *storage.Writer
	bucket string
	object string
}

func (x *writer) Write(p []byte) (int, error) {
	n, err := x.w.Write(p)
	if err != nil {
		return n, goerr.Wrap(err, "failed to write object", goerr.V("bucket", x.bucket), goerr.V("object", x.object))
	}
	return n, nil
}

func (x *writer) Close() error {
	if err := x.w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize object", goerr.V("bucket", x.bucket), goerr.V("object", x.object))
	}
	return nil
}
