package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column layouts follow the medical expense deduction form the summary
// gets transcribed into. medical_cure is always 該当する since every
// record here is a treatment receipt; medicine, support and others are
// filled in by hand on the form.
var (
	summaryHeader = []string{
		"hospital_name", "patient_name", "medical_cure", "medicine",
		"support", "others", "total_amount", "receipt_count",
		"receipts_with_amount", "filenames",
	}
	detailHeader = []string{
		"filename", "patient_name", "hospital_name", "amount", "extraction_status",
	}
)

// utf8BOM is prepended to both files so Excel detects the encoding and
// renders the Japanese text correctly.
const utf8BOM = "\uFEFF"

// WriteSummary writes one CSV row per group, in the given order.
func WriteSummary(w io.Writer, groups []Group) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}
	for _, g := range groups {
		row := []string{
			g.Key.Institution,
			g.Key.Patient,
			"該当する",
			"",
			"",
			"",
			strconv.Itoa(g.TotalAmount),
			strconv.Itoa(g.RecordCount),
			strconv.Itoa(g.AmountedCount),
			strings.Join(g.SourceFiles, ", "),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing summary row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDetail writes one CSV row per record, in extraction order. Names
// are the raw extracted values; normalization applies only to grouping.
func WriteDetail(w io.Writer, records []Record) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(detailHeader); err != nil {
		return fmt.Errorf("writing detail header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.SourceFile,
			r.PatientName,
			r.Institution,
			strconv.Itoa(r.Amount),
			string(r.Status),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing detail row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryFile writes the group summary to path.
func WriteSummaryFile(path string, groups []Group) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary file: %w", err)
	}
	if err := WriteSummary(f, groups); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteDetailFile writes the per-record detail to path.
func WriteDetailFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating detail file: %w", err)
	}
	if err := WriteDetail(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
