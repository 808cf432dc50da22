// ABOUTME: Export functionality for health data
// ABOUTME: Supports YAML, JSON, and Markdown export of patients and their records
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/healthdb/internal/models"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string          `yaml:"version" json:"version"`
	ExportedAt string          `yaml:"exported_at" json:"exported_at"`
	Tool       string          `yaml:"tool" json:"tool"`
	Patients   []ExportPatient `yaml:"patients" json:"patients"`
}

// ExportPatient represents a patient with their records for export
type ExportPatient struct {
	ID        int64          `yaml:"id" json:"id"`
	Name      string         `yaml:"name" json:"name"`
	CreatedAt string         `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	Records   []ExportRecord `yaml:"records" json:"records"`
}

// ExportRecord represents a health record for export
type ExportRecord struct {
	Timestamp  string `yaml:"timestamp" json:"timestamp"`
	RecordType string `yaml:"record_type" json:"record_type"`
	DataType   string `yaml:"data_type" json:"data_type"`
	Value      string `yaml:"value" json:"value"`
}

// Export collects every patient and their records, newest record first.
func (s *Store) Export(ctx context.Context) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "healthdb",
		Patients:   []ExportPatient{},
	}

	patients, err := s.Patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	for _, p := range patients {
		records, err := s.Records.List(ctx, models.RecordFilter{Patient: p.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to list records for %q: %w", p.Name, err)
		}

		ep := ExportPatient{
			ID:      p.ID,
			Name:    p.Name,
			Records: make([]ExportRecord, 0, len(records)),
		}
		if !p.CreatedAt.IsZero() {
			ep.CreatedAt = p.CreatedAt.Format(time.RFC3339)
		}
		for _, r := range records {
			ep.Records = append(ep.Records, ExportRecord{
				Timestamp:  r.Timestamp.Format(time.RFC3339),
				RecordType: r.RecordType,
				DataType:   r.DataType,
				Value:      r.Value,
			})
		}
		data.Patients = append(data.Patients, ep)
	}

	return data, nil
}

// WriteExport encodes data to w in the given format.
func WriteExport(w io.Writer, data *ExportData, format string) error {
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatMarkdown:
		writeMarkdown(w, data)
		return nil
	default:
		return fmt.Errorf("unknown export format %q (want yaml, json, or markdown)", format)
	}
}

// ExportToFile exports all data to outputPath in the given format.
func (s *Store) ExportToFile(ctx context.Context, outputPath, format string) error {
	data, err := s.Export(ctx)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := WriteExport(file, data, format); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeMarkdown(w io.Writer, data *ExportData) {
	_, _ = fmt.Fprintf(w, "# Health Records Export - %s\n\n", time.Now().Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	for _, p := range data.Patients {
		_, _ = fmt.Fprintf(w, "## %s\n\n", p.Name)
		if len(p.Records) == 0 {
			_, _ = fmt.Fprintln(w, "*No records*")
			_, _ = fmt.Fprintln(w)
			continue
		}
		_, _ = fmt.Fprintln(w, "| Timestamp | Type | Data Type | Value |")
		_, _ = fmt.Fprintln(w, "|-----------|------|-----------|-------|")
		for _, r := range p.Records {
			_, _ = fmt.Fprintf(w, "| %s | %s | %s | %s |\n", r.Timestamp, r.RecordType, r.DataType, r.Value)
		}
		_, _ = fmt.Fprintln(w)
	}
}
