package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/user/mediarefinery/internal/domain"
)

// WriteDryRunJSON writes the latest dry-run snapshot as indented JSON.
func WriteDryRunJSON(w io.Writer, s *domain.DryRunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteDryRunCSV writes one row per discovered image plus a totals row.
func WriteDryRunCSV(w io.Writer, s *domain.DryRunSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "original_bytes", "estimated_bytes", "estimated_savings"}); err != nil {
		return err
	}
	for _, img := range s.PerImage {
		row := []string{
			img.URL,
			strconv.FormatInt(img.OriginalBytes, 10),
			strconv.FormatInt(img.EstimatedBytes, 10),
			strconv.FormatInt(img.OriginalBytes-img.EstimatedBytes, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	totals := []string{
		"TOTAL",
		strconv.FormatInt(s.TotalBytes, 10),
		strconv.FormatInt(s.EstimatedBytes, 10),
		strconv.FormatInt(s.EstimatedSavings, 10),
	}
	if err := cw.Write(totals); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
