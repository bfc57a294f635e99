package baseline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/driftguard-ai/driftguard/internal/engine"
)

// fileHeader is the flat-table column layout. The centroid is one column
// of semicolon-joined floats so the file stays a plain CSV.
var fileHeader = []string{
	"model_id",
	"avg_response_time", "std_response_time",
	"avg_token_count", "std_token_count",
	"avg_confidence", "std_confidence",
	"baseline_date", "sample_count",
	"centroid",
}

// Save writes the snapshot to path atomically: the rows go to a temp file
// in the same directory which is then renamed over the target, so a
// concurrent reader sees either the old file or the new one, never a
// truncated write.
func Save(path string, snap *Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp baseline file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(fileHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write baseline header: %w", err)
	}

	models := snap.Models()
	sort.Strings(models)
	for _, id := range models {
		rec, _ := snap.Lookup(id)
		if err := w.Write(encodeRow(rec)); err != nil {
			tmp.Close()
			return fmt.Errorf("write baseline row for %s: %w", id, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush baseline file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close baseline file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish baseline file: %w", err)
	}
	return nil
}

// Load reads a snapshot previously written by Save. A missing file is an
// error; the caller decides whether to start empty.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open baseline file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(fileHeader)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read baseline file: %w", err)
	}
	if len(rows) == 0 {
		return NewSnapshot(nil, time.Time{}), nil
	}

	records := make([]*engine.BaselineRecord, 0, len(rows)-1)
	var latest time.Time
	for i, row := range rows[1:] {
		rec, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("baseline row %d: %w", i+2, err)
		}
		if rec.BaselineDate.After(latest) {
			latest = rec.BaselineDate
		}
		records = append(records, rec)
	}
	return NewSnapshot(records, latest), nil
}

func encodeRow(rec *engine.BaselineRecord) []string {
	return []string{
		rec.ModelID,
		formatFloat(rec.AvgResponseTime), formatFloat(rec.StdResponseTime),
		formatFloat(rec.AvgTokenCount), formatFloat(rec.StdTokenCount),
		formatFloat(rec.AvgConfidence), formatFloat(rec.StdConfidence),
		rec.BaselineDate.UTC().Format(time.RFC3339),
		strconv.Itoa(rec.SampleCount),
		encodeCentroid(rec.Centroid),
	}
}

func decodeRow(row []string) (*engine.BaselineRecord, error) {
	rec := &engine.BaselineRecord{ModelID: row[0]}
	if rec.ModelID == "" {
		return nil, fmt.Errorf("empty model_id")
	}

	floats := []*float64{
		&rec.AvgResponseTime, &rec.StdResponseTime,
		&rec.AvgTokenCount, &rec.StdTokenCount,
		&rec.AvgConfidence, &rec.StdConfidence,
	}
	for i, dst := range floats {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", fileHeader[i+1], err)
		}
		*dst = v
	}

	date, err := time.Parse(time.RFC3339, row[7])
	if err != nil {
		return nil, fmt.Errorf("baseline_date: %w", err)
	}
	rec.BaselineDate = date

	count, err := strconv.Atoi(row[8])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("sample_count %q", row[8])
	}
	rec.SampleCount = count

	rec.Centroid, err = decodeCentroid(row[9])
	if err != nil {
		return nil, fmt.Errorf("centroid: %w", err)
	}
	return rec, nil
}

func encodeCentroid(c []float64) string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ";")
}

func decodeCentroid(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
