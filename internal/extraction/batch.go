package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medexpense/internal/receipt"
)

const (
	defaultPollInterval = 5 * time.Second
	maxPollInterval     = 60 * time.Second
	defaultBatchWait    = 30 * time.Minute
)

// Batch submits every image as one service-side job and polls it to
// completion. Partial results are expected: each submitted item gets its
// own outcome, and items the service never answered for stay failure
// records, so the one-record-per-image invariant holds no matter what
// the job returns.
type Batch struct {
	client       BatchClient
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewBatch creates the batch-job strategy. Non-positive durations fall
// back to the defaults (5s initial poll, doubling to 60s; 30m maximum
// wait).
func NewBatch(client BatchClient, pollInterval, maxWait time.Duration) *Batch {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = defaultBatchWait
	}
	return &Batch{client: client, pollInterval: pollInterval, maxWait: maxWait}
}

// Extract implements Extractor.
func (b *Batch) Extract(ctx context.Context, images []Image) ([]receipt.Record, error) {
	if len(images) == 0 {
		return nil, nil
	}

	// Every image starts out as a failure record and is overwritten by
	// its outcome. Conversion happens up front: an image that cannot be
	// prepared fails locally and is never submitted. Custom IDs are
	// index-based because source filenames are not valid service
	// identifiers.
	records := make([]receipt.Record, len(images))
	items := make([]BatchItem, 0, len(images))
	indexByID := make(map[string]int, len(images))
	for i, img := range images {
		records[i] = failureRecord(img.Name)

		pngData, err := preparePNG(img.Data, img.ContentType)
		if err != nil {
			slog.Warn("Unusable receipt image", "file", img.Name, "error", err)
			continue
		}
		id := fmt.Sprintf("img-%04d", i)
		indexByID[id] = i
		items = append(items, BatchItem{CustomID: id, PNG: pngData})
	}
	if len(items) == 0 {
		return records, nil
	}

	jobID, err := b.client.SubmitBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("submitting batch of %d images: %w", len(items), err)
	}
	slog.Info("Batch job submitted", "job", jobID, "items", len(items))

	if err := b.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	outcomes, err := b.client.BatchResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("collecting batch results: %w", err)
	}
	for _, out := range outcomes {
		i, ok := indexByID[out.CustomID]
		if !ok {
			slog.Warn("Batch result for unknown item", "custom_id", out.CustomID)
			continue
		}
		if out.Err != nil {
			slog.Warn("Field extraction failed", "file", images[i].Name, "error", out.Err)
			continue
		}
		records[i] = ParseFields(images[i].Name, out.Text)
	}

	return records, nil
}

// Close implements Extractor.
func (b *Batch) Close() error {
	return b.client.Close()
}

// waitForJob polls job status with doubling backoff until the job ends
// or the deadline passes. On timeout the job is canceled best-effort and
// the run fails.
func (b *Batch) waitForJob(ctx context.Context, jobID string) error {
	deadline := time.Now().Add(b.maxWait)
	interval := b.pollInterval
	for {
		done, err := b.client.BatchDone(ctx, jobID)
		if err != nil {
			return fmt.Errorf("polling batch %s: %w", jobID, err)
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			if cancelErr := b.client.CancelBatch(ctx, jobID); cancelErr != nil {
				slog.Warn("Canceling batch job failed", "job", jobID, "error", cancelErr)
			}
			return fmt.Errorf("%w: job %s still running after %s", ErrBatchTimeout, jobID, b.maxWait)
		}

		slog.Info("Batch job still running", "job", jobID, "next_poll", interval)
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}
