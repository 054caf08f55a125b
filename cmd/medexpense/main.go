package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"medexpense/internal/extraction"
	"medexpense/internal/pipeline"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Credentials may live in a .env next to the receipts
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	fs := ff.NewFlagSet("medexpense")
	var (
		output       = fs.StringLong("output", "medical_receipts_data.csv", "Summary CSV path")
		detail       = fs.StringLong("detail", "", "Detail CSV path (default: summary path with a _detail suffix)")
		provider     = fs.StringLong("provider", "claude", "Extraction provider: 'claude' or 'gemini'")
		strategy     = fs.StringLong("strategy", "single", "Extraction strategy: 'single' or 'batch'")
		model        = fs.StringLong("model", "", "Model name override for the chosen provider")
		workers      = fs.IntLong("workers", 4, "Concurrent extraction requests (single strategy)")
		retries      = fs.IntLong("retries", 0, "Retries per image after a failed request (single strategy)")
		pollInterval = fs.DurationLong("poll-interval", 5*time.Second, "Initial batch status poll interval")
		batchTimeout = fs.DurationLong("batch-timeout", 30*time.Minute, "Maximum wait for a batch job")
		claudeKey    = fs.StringLong("claude-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MEDEXPENSE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: exactly one receipt folder argument is required")
		os.Exit(1)
	}
	folder := args[0]

	detailPath := *detail
	if detailPath == "" {
		detailPath = detailPathFor(*output)
	}

	// Initialize the provider. The batch strategy additionally needs a
	// client that can run service-side jobs, which only Claude offers.
	var (
		vision extraction.VisionClient
		batch  extraction.BatchClient
		err    error
	)
	switch *provider {
	case "claude":
		apiKey := *claudeKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Claude API key is required. Set --claude-key flag or ANTHROPIC_API_KEY environment variable")
			os.Exit(1)
		}
		var claude *extraction.Claude
		claude, err = extraction.NewClaude(apiKey, *model)
		if err != nil {
			slog.Error("Failed to initialize Claude", "error", err)
			os.Exit(1)
		}
		vision, batch = claude, claude
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		vision, err = extraction.NewGemini(apiKey, *model)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "claude or gemini")
		os.Exit(1)
	}

	var extractor extraction.Extractor
	switch *strategy {
	case "single":
		extractor = extraction.NewSingle(vision, *workers, *retries)
	case "batch":
		if batch == nil {
			slog.Error("Batch strategy requires the claude provider", "provider", *provider)
			os.Exit(1)
		}
		extractor = extraction.NewBatch(batch, *pollInterval, *batchTimeout)
	default:
		slog.Error("Invalid strategy", "strategy", *strategy, "valid", "single or batch")
		os.Exit(1)
	}
	slog.Info("Processing receipts", "folder", folder, "provider", *provider, "strategy", *strategy)

	outcome, err := pipeline.New(extractor).Run(context.Background(), pipeline.Options{
		Folder:      folder,
		SummaryPath: *output,
		DetailPath:  detailPath,
	})
	// Closed explicitly rather than deferred: the failure path below
	// exits the process, which would skip a deferred close.
	if closeErr := extractor.Close(); closeErr != nil {
		slog.Warn("Closing extraction client failed", "error", closeErr)
	}
	if err != nil {
		slog.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Run complete",
		"images", outcome.Images,
		"groups", outcome.Groups,
		"success", outcome.Succeeded,
		"partial", outcome.Partial,
		"failure", outcome.Failed,
	)
	slog.Info("Summary written", "path", *output)
	slog.Info("Detail written", "path", detailPath)
}

// detailPathFor derives the per-record output path from the summary path
// (medical_receipts_data.csv -> medical_receipts_data_detail.csv).
func detailPathFor(summaryPath string) string {
	ext := filepath.Ext(summaryPath)
	return strings.TrimSuffix(summaryPath, ext) + "_detail" + ext
}
