package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"medexpense/internal/receipt"
)

const (
	defaultWorkers = 4
	// fieldRequestTimeout bounds one vision round trip.
	fieldRequestTimeout = 60 * time.Second
	// defaultRetryDelay sits between attempts for the same image.
	defaultRetryDelay = 2 * time.Second
)

// Single issues one extraction request per image with bounded
// concurrency. The first request that reaches the service is made alone
// before workers start: a connection-level failure there means the
// service is down, which fails the run instead of producing a file full
// of failure records.
type Single struct {
	client     VisionClient
	workers    int
	retries    int
	retryDelay time.Duration
}

// NewSingle creates the per-image strategy. workers <= 0 falls back to
// the default; retries is the number of re-attempts per image after the
// first try.
func NewSingle(client VisionClient, workers, retries int) *Single {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if retries < 0 {
		retries = 0
	}
	return &Single{
		client:     client,
		workers:    workers,
		retries:    retries,
		retryDelay: defaultRetryDelay,
	}
}

// Extract implements Extractor. Records come back in input order, one
// per image, regardless of worker completion order.
func (s *Single) Extract(ctx context.Context, images []Image) ([]receipt.Record, error) {
	if len(images) == 0 {
		return nil, nil
	}

	records := make([]receipt.Record, len(images))

	// The probe is the first request that actually reaches the service,
	// not the first image: files that fail conversion locally never
	// contact it and cannot prove it is up, so they are skipped past
	// until a convertible image makes the call.
	rest := len(images)
	for i, img := range images {
		pngData, err := preparePNG(img.Data, img.ContentType)
		if err != nil {
			slog.Warn("Unusable receipt image", "file", img.Name, "error", err)
			records[i] = failureRecord(img.Name)
			continue
		}
		rec, err := s.extractPrepared(ctx, img.Name, pngData)
		if err != nil {
			return nil, err
		}
		records[i] = rec
		rest = i + 1
		break
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := rest; i < len(images); i++ {
		g.Go(func() error {
			rec, err := s.extractImage(ctx, images[i])
			if err != nil {
				// The service went away mid-run; keep the row and move on.
				slog.Warn("Extraction service error", "file", images[i].Name, "error", err)
				rec = failureRecord(images[i].Name)
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return records, nil
}

// Close implements Extractor.
func (s *Single) Close() error {
	return s.client.Close()
}

// extractImage runs conversion, the service round trip and parsing for
// one image. The error return is non-nil only for connection-level
// failures; everything else degrades to record status.
func (s *Single) extractImage(ctx context.Context, img Image) (receipt.Record, error) {
	pngData, err := preparePNG(img.Data, img.ContentType)
	if err != nil {
		slog.Warn("Unusable receipt image", "file", img.Name, "error", err)
		return failureRecord(img.Name), nil
	}
	return s.extractPrepared(ctx, img.Name, pngData)
}

// extractPrepared runs the service round trip and parsing for one
// already-converted image.
func (s *Single) extractPrepared(ctx context.Context, name string, pngData []byte) (receipt.Record, error) {
	text, err := s.requestFields(ctx, pngData)
	if err != nil {
		if errors.Is(err, ErrServiceUnreachable) {
			return receipt.Record{}, fmt.Errorf("extracting %s: %w", name, err)
		}
		slog.Warn("Field extraction failed", "file", name, "error", err)
		return failureRecord(name), nil
	}
	return ParseFields(name, text), nil
}

// requestFields calls the service, re-attempting per the configured
// retry count with a short pause between tries.
func (s *Single) requestFields(ctx context.Context, pngData []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			slog.Info("Retrying extraction request", "attempt", attempt+1)
			if err := sleepCtx(ctx, s.retryDelay); err != nil {
				return "", err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, fieldRequestTimeout)
		text, err := s.client.ExtractFields(reqCtx, pngData)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}
