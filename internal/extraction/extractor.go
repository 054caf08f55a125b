package extraction

import (
	"context"
	"errors"
	"time"

	"medexpense/internal/receipt"
)

// Image is one enumerated receipt file queued for extraction.
type Image struct {
	Name        string // source filename, unique within a run
	Data        []byte
	ContentType string
}

// Run-level failures. Per-image problems never surface as errors; they
// become failure-status records instead.
var (
	// ErrServiceUnreachable marks connection-level failures, as opposed
	// to the service answering and rejecting a single image.
	ErrServiceUnreachable = errors.New("extraction service unreachable")
	// ErrBatchTimeout marks a batch job still running after the maximum wait.
	ErrBatchTimeout = errors.New("batch job timed out")
)

// Extractor turns receipt images into records, exactly one per image and
// in input order. Implementations differ only in how they talk to the
// service; callers never branch on strategy.
type Extractor interface {
	Extract(ctx context.Context, images []Image) ([]receipt.Record, error)
	// Close releases the underlying service client.
	Close() error
}

// VisionClient answers one field-extraction request for one PNG image,
// returning the raw model output.
type VisionClient interface {
	ExtractFields(ctx context.Context, pngData []byte) (string, error)
	Close() error
}

// BatchItem pairs a service-safe custom ID with a prepared PNG.
type BatchItem struct {
	CustomID string
	PNG      []byte
}

// BatchOutcome is one per-item result from a finished batch job.
type BatchOutcome struct {
	CustomID string
	Text     string
	Err      error
}

// BatchClient runs field extraction as an asynchronous service-side job.
type BatchClient interface {
	SubmitBatch(ctx context.Context, items []BatchItem) (string, error)
	BatchDone(ctx context.Context, jobID string) (bool, error)
	BatchResults(ctx context.Context, jobID string) ([]BatchOutcome, error)
	CancelBatch(ctx context.Context, jobID string) error
	Close() error
}

// failureRecord is the record produced for an image nothing could be
// extracted from.
func failureRecord(sourceFile string) receipt.Record {
	return receipt.Record{
		SourceFile: sourceFile,
		Status:     receipt.StatusFailure,
	}
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
