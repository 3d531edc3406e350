// Copyright HCSS Utils, 2026. All rights reserved.

package splitter

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// WriteQueryCSV saves the flattened query list: one row per generated
// sub-query, suitable for feeding a downstream harvester.
func WriteQueryCSV(path string, report types.FinalReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating query list %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"year", "query_id", "query", "modifiers", "type", "hits"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range report.Records() {
		row := []string{
			strconv.Itoa(r.Year),
			strconv.Itoa(r.QueryID),
			r.QueryText,
			strings.Join(r.Modifiers, "|"),
			string(r.Type),
			strconv.Itoa(r.HitCount),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing query list: %w", err)
	}
	return nil
}

// WriteReport saves the final coverage report to a YAML file.
func WriteReport(path string, report types.FinalReport) error {
	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a previously saved report from disk.
func ReadReport(path string) (*types.FinalReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	var report types.FinalReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &report, nil
}
