package postings

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"jobbot/internal/shared/telemetry"
)

var (
	ErrNothingToExport   = errors.New("no postings to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrNoUploader        = errors.New("export requires an uploader")
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Uploader receives rendered exports bound for object storage.
type Uploader interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// Destination is a parsed export target. Local targets keep their directory in Dir;
// s3://bucket/key targets set Bucket. Key is what the uploader receives either way.
type Destination struct {
	Bucket string
	Dir    string
	Key    string
}

func (d Destination) Remote() bool { return d.Bucket != "" }

func (d Destination) String() string {
	if d.Remote() {
		return "s3://" + d.Bucket + "/" + d.Key
	}
	return filepath.Join(d.Dir, d.Key)
}

// ParseDestination splits s3://bucket/key targets from local paths.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("export destination is empty")
	}
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		clean := filepath.Clean(raw)
		return Destination{Dir: filepath.Dir(clean), Key: filepath.Base(clean)}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if bucket == "" || key == "" {
		return Destination{}, fmt.Errorf("s3 destination needs bucket and key: %q", raw)
	}
	return Destination{Bucket: bucket, Key: key}, nil
}

type ExportSummary struct {
	Destination string
	Postings    int
	Bytes       int64
}

// Export renders every stored posting and hands the file to up under dest.Key.
// The format follows the key's extension.
func Export(ctx context.Context, repo Repo, dest Destination, up Uploader) (ExportSummary, error) {
	if up == nil {
		return ExportSummary{}, ErrNoUploader
	}
	items, err := repo.Load(ctx)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("load postings: %w", err)
	}
	if len(items) == 0 {
		telemetry.Warn("export.empty", map[string]any{"destination": dest.String()})
		return ExportSummary{}, ErrNothingToExport
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch strings.ToLower(filepath.Ext(dest.Key)) {
	case ".csv":
		contentType = contentTypeCSV
		err = WriteCSV(&buf, items)
	case ".xlsx":
		contentType = contentTypeXLSX
		var results []ApplicationResult
		results, err = repo.Applications(ctx, time.Time{})
		if err != nil {
			return ExportSummary{}, fmt.Errorf("load applications: %w", err)
		}
		err = WriteXLSX(&buf, items, results)
	default:
		return ExportSummary{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(dest.Key))
	}
	if err != nil {
		return ExportSummary{}, err
	}

	n, err := up.SaveWithKey(ctx, dest.Key, contentType, &buf)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("write export: %w", err)
	}

	telemetry.Info("export.done", map[string]any{
		"destination": dest.String(),
		"postings":    len(items),
		"bytes":       n,
	})
	return ExportSummary{Destination: dest.String(), Postings: len(items), Bytes: n}, nil
}

var postingHeader = []string{
	"job_id", "job_board", "title", "company", "location", "posting_date", "url",
	"salary_range", "job_type", "experience_level", "skills_required",
	"application_status", "applied_date", "application_notes", "scraped_date",
}

func postingRow(p JobPosting) []string {
	applied := ""
	if p.AppliedDate != nil {
		applied = p.AppliedDate.UTC().Format(time.RFC3339)
	}
	return []string{
		p.JobID,
		string(p.Board),
		p.Title,
		p.Company,
		p.Location,
		p.PostingDate,
		p.URL,
		p.SalaryRange,
		p.JobType,
		p.ExperienceLevel,
		strings.Join(p.SkillsRequired, ", "),
		string(p.Status),
		applied,
		p.Notes,
		p.ScrapedDate.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes a header row and one row per posting.
func WriteCSV(w io.Writer, items []JobPosting) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(postingHeader); err != nil {
		return err
	}
	for _, p := range items {
		if err := cw.Write(postingRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	jobsSheet         = "Jobs"
	applicationsSheet = "Applications"
)

var applicationHeader = []string{"timestamp", "job_board", "job_title", "company", "job_url", "outcome", "success", "message", "error_kind"}

// WriteXLSX renders a workbook with a Jobs sheet and an Applications sheet.
func WriteXLSX(w io.Writer, items []JobPosting, results []ApplicationResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(applicationsSheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	jobRows := make([][]any, 0, len(items))
	for _, p := range items {
		row := postingRow(p)
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		jobRows = append(jobRows, cells)
	}
	if err := fillSheet(f, jobsSheet, postingHeader, jobRows, headerStyle); err != nil {
		return fmt.Errorf("jobs sheet: %w", err)
	}

	appRows := make([][]any, 0, len(results))
	for _, r := range results {
		appRows = append(appRows, []any{
			r.Timestamp.UTC().Format(time.RFC3339),
			string(r.Board),
			r.Title,
			r.Company,
			r.URL,
			string(r.Outcome),
			r.Success,
			r.Message,
			r.ErrorKind,
		})
	}
	if err := fillSheet(f, applicationsSheet, applicationHeader, appRows, headerStyle); err != nil {
		return fmt.Errorf("applications sheet: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

func fillSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
