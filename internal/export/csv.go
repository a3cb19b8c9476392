package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nlindqvist/psarank/pkg/models"
)

var (
	apiHeader  = []string{"rank", "name", "id", "tournaments", "points", "height_cm", "weight_kg", "birthdate", "country", "source"}
	htmlHeader = []string{"rank", "name", "tournaments", "points", "source"}
)

// CSVWriter writes completed result sets to per-gender CSV files.
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer targeting the given output directory
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: logger}
}

// Path returns the output file for a gender. Degraded sets get a distinct
// name so a fallback export is never mistaken for a complete one.
func (w *CSVWriter) Path(gender models.Gender, degraded bool) string {
	name := fmt.Sprintf("psa_rankings_%s.csv", gender)
	if degraded {
		name = fmt.Sprintf("psa_rankings_%s_fallback.csv", gender)
	}
	return filepath.Join(w.dir, name)
}

// Write exports one result set and returns the path written. The column
// set depends on the record variant: fallback records have no identifier
// or biographical columns to begin with.
func (w *CSVWriter) Write(gender models.Gender, records *models.ResultSet) (string, error) {
	path := w.Path(gender, records.Degraded())

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	cw := csv.NewWriter(file)
	writeErr := writeRecords(cw, records)
	cw.Flush()
	if writeErr == nil {
		writeErr = cw.Error()
	}
	if closeErr := file.Close(); writeErr == nil && closeErr != nil {
		writeErr = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if writeErr != nil {
		return "", writeErr
	}

	w.logger.Info("Wrote rankings export",
		"path", path,
		"records", records.Len(),
		"degraded", records.Degraded())

	return path, nil
}

func writeRecords(cw *csv.Writer, records *models.ResultSet) error {
	switch records.Source {
	case models.SourceAPI:
		if err := cw.Write(apiHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for _, p := range records.API {
			if err := cw.Write(apiRow(p)); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	case models.SourceHTML:
		if err := cw.Write(htmlHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for _, p := range records.HTML {
			if err := cw.Write(htmlRow(p)); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	default:
		return fmt.Errorf("cannot export result set with source %q", records.Source)
	}
	return nil
}

func apiRow(p models.APIPlayer) []string {
	return []string{
		strconv.Itoa(p.Rank),
		p.Name,
		strconv.FormatInt(p.ID, 10),
		strconv.Itoa(p.Tournaments),
		strconv.Itoa(p.Points),
		optionalInt(p.HeightCM),
		optionalInt(p.WeightKG),
		optionalString(p.Birthdate),
		optionalString(p.Country),
		string(models.SourceAPI),
	}
}

func htmlRow(p models.HTMLPlayer) []string {
	return []string{
		strconv.Itoa(p.Rank),
		p.Name,
		strconv.Itoa(p.Tournaments),
		strconv.Itoa(p.Points),
		string(models.SourceHTML),
	}
}

// Absent optional fields export as empty cells, never a placeholder.
func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
