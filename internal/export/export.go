// Package export serializes query results to the formats offered by
// the CLI.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jlumpe/gambit/internal/query"
)

// Exporter writes a complete result set to an output stream.
type Exporter interface {
	Export(w io.Writer, results *query.Results) error
}

// ForFormat returns the exporter for a CLI format name.
func ForFormat(format string) (Exporter, error) {
	switch format {
	case "csv":
		return CSVExporter{}, nil
	case "json":
		return JSONExporter{Pretty: true}, nil
	}
	return nil, fmt.Errorf("invalid output format %q", format)
}

// CSVExporter writes one row per query with the prediction, the
// closest match and the next-rank taxon.
type CSVExporter struct{}

var csvHeader = []string{
	"query",
	"predicted.name",
	"predicted.rank",
	"predicted.ncbi_id",
	"predicted.threshold",
	"closest.distance",
	"closest.description",
	"next.name",
	"next.rank",
	"next.ncbi_id",
	"next.threshold",
}

func (CSVExporter) Export(w io.Writer, results *query.Results) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, item := range results.Items {
		if err := cw.Write(csvRow(item)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(item query.Item) []string {
	row := make([]string, 0, len(csvHeader))
	row = append(row, item.Query)
	row = append(row, taxonCols(item.Predicted)...)

	if item.Closest != nil {
		row = append(row,
			strconv.FormatFloat(float64(item.Closest.Distance), 'g', -1, 32),
			item.Closest.Description,
		)
	} else {
		row = append(row, "", "")
	}

	row = append(row, taxonCols(item.Next)...)
	return row
}

func taxonCols(t *query.TaxonInfo) []string {
	if t == nil {
		return []string{"", "", "", ""}
	}

	ncbi := ""
	if t.NCBIID != nil {
		ncbi = strconv.FormatInt(*t.NCBIID, 10)
	}
	threshold := ""
	if t.Threshold != nil {
		threshold = strconv.FormatFloat(*t.Threshold, 'g', -1, 64)
	}
	return []string{t.Name, t.Rank, ncbi, threshold}
}

// JSONExporter writes the full result object, including warnings and
// database parameters, as a single JSON document.
type JSONExporter struct {
	Pretty bool
}

func (e JSONExporter) Export(w io.Writer, results *query.Results) error {
	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(results)
}
