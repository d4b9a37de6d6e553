package interfaces

import (
	"context"
	"io"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// Notifier delivers committed case events to people. Delivery is best effort and never part of the
// transaction that produced the event.
type Notifier interface {
	NotifyCaseEvent(ctx context.Context, ev *model.CaseEvent) error
}

// BlobStorage opens writers on object storage. Close on the returned writer commits the object.
type BlobStorage interface {
	NewWriter(ctx context.Context, bucket, object string) (io.WriteCloser, error)
}
