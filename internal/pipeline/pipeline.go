package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"medexpense/internal/extraction"
	"medexpense/internal/receipt"
)

// imageContentTypes maps accepted input extensions to the MIME type the
// conversion step keys off. Anything else in the folder is skipped, not
// mis-processed.
var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Options configures one run.
type Options struct {
	Folder      string
	SummaryPath string
	DetailPath  string
}

// Outcome summarizes a finished run.
type Outcome struct {
	Images    int
	Groups    int
	Succeeded int
	Partial   int
	Failed    int
}

// Pipeline drives one extraction-and-aggregation run.
type Pipeline struct {
	extractor extraction.Extractor
}

// New creates a Pipeline around the given extractor.
func New(extractor extraction.Extractor) *Pipeline {
	return &Pipeline{extractor: extractor}
}

// Run enumerates the folder, extracts every image, aggregates records by
// (institution, patient) and writes both CSV files. Per-image failures
// show up in the outputs; only run-level problems return an error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Outcome, error) {
	images, err := loadImages(opts.Folder)
	if err != nil {
		return nil, err
	}

	records, err := p.extractor.Extract(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("extracting receipts: %w", err)
	}

	groups := receipt.Aggregate(records)

	if err := receipt.WriteSummaryFile(opts.SummaryPath, groups); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}
	if err := receipt.WriteDetailFile(opts.DetailPath, records); err != nil {
		return nil, fmt.Errorf("writing detail: %w", err)
	}

	outcome := &Outcome{Images: len(images), Groups: len(groups)}
	for _, r := range records {
		switch r.Status {
		case receipt.StatusSuccess:
			outcome.Succeeded++
		case receipt.StatusPartialFailure:
			outcome.Partial++
		default:
			outcome.Failed++
		}
	}
	return outcome, nil
}

// loadImages lists the folder and reads each accepted file. os.ReadDir
// sorts by name; every later ordering follows this one. A file that
// cannot be read still yields an entry, with empty data, so it surfaces
// as a failure record instead of disappearing from the outputs.
func loadImages(folder string) ([]extraction.Image, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading input folder: %w", err)
	}

	var images []extraction.Image
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contentType, ok := imageContentTypes[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			skipped++
			continue
		}
		data, err := os.ReadFile(filepath.Join(folder, entry.Name()))
		if err != nil {
			slog.Warn("Reading receipt image failed", "file", entry.Name(), "error", err)
			data = nil
		}
		images = append(images, extraction.Image{
			Name:        entry.Name(),
			Data:        data,
			ContentType: contentType,
		})
	}

	slog.Info("Enumerated receipt images", "folder", folder, "images", len(images), "skipped", skipped)
	return images, nil
}
