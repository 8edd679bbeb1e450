// Package artifact renders run results as CSV tables and writes them to a
// local directory or an S3 bucket.
package artifact

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/convergence"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// File names written by Export
const (
	FileIndices     = "indices.csv"
	FileSamples     = "sample_indices.csv"
	FileSOC         = "soc.csv"
	FileCurtailment = "curtailment.csv"
	FileWind        = "wind.csv"
	FileSolar       = "solar.csv"
	FileHeatMap     = "LOL_perc_prob.csv"
	FileConvergence = "convergence.csv"
	FileHourlyLOLP  = "hourly_lolp.csv"
	FileDurations   = "outage_durations.csv"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encode(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// IndicesTable is a single row of the run indices under IndexNames headers.
func IndicesTable(ix models.Indices) [][]string {
	row := make([]string, 0, len(models.IndexNames))
	for _, v := range ix.Vector() {
		row = append(row, ff(v))
	}
	return [][]string{append([]string(nil), models.IndexNames...), row}
}

// SamplesTable lists the indices of every sample
func SamplesTable(samples []models.Indices) [][]string {
	header := append([]string{"sample"}, models.IndexNames...)
	out := [][]string{header}
	for i, ix := range samples {
		row := []string{strconv.Itoa(i + 1)}
		for _, v := range ix.Vector() {
			row = append(row, ff(v))
		}
		out = append(out, row)
	}
	return out
}

// MatrixTable writes one row per named series and one column per hour.
// Missing names fall back to the row number.
func MatrixTable(names []string, rows [][]float64) [][]string {
	hours := 0
	for _, r := range rows {
		hours = max(hours, len(r))
	}
	header := make([]string, hours+1)
	header[0] = "name"
	for h := 0; h < hours; h++ {
		header[h+1] = strconv.Itoa(h + 1)
	}
	out := [][]string{header}
	for i, r := range rows {
		name := strconv.Itoa(i + 1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		row := make([]string, 0, len(r)+1)
		row = append(row, name)
		for _, v := range r {
			row = append(row, ff(v))
		}
		out = append(out, row)
	}
	return out
}

// SeriesTable writes an hourly series as (hour, value) rows
func SeriesTable(column string, values []float64) [][]string {
	out := [][]string{{"hour", column}}
	for h, v := range values {
		out = append(out, []string{strconv.Itoa(h + 1), ff(v)})
	}
	return out
}

// HeatMapTable writes the loss-of-load probability in percent, one row per
// month and one column per hour of day. The days column gives the calendar
// length each row's cells were sampled over.
func HeatMapTable(hm *models.HeatMap) [][]string {
	header := make([]string, 26)
	header[0], header[1] = "month", "days"
	for h := 0; h < 24; h++ {
		header[h+2] = strconv.Itoa(h)
	}
	out := [][]string{header}
	pct := hm.Percent()
	for m := range pct {
		row := make([]string, 0, 26)
		row = append(row, monthNames[m], strconv.Itoa(utils.DaysInMonth(m)))
		for _, v := range pct[m] {
			row = append(row, ff(v))
		}
		out = append(out, row)
	}
	return out
}

// ConvergenceTable writes the mean LOLP and CoV after each sample count.
// An undefined CoV is left empty.
func ConvergenceTable(trace []convergence.Point) [][]string {
	out := [][]string{{"samples", "mean_lolp", "cov"}}
	for _, p := range trace {
		cov := ""
		if !math.IsNaN(p.CoV) {
			cov = ff(p.CoV)
		}
		out = append(out, []string{strconv.Itoa(p.Samples), ff(p.Mean), cov})
	}
	return out
}

// DurationsTable writes the outage duration histogram; bin i counts events of
// i+1 hours, the last bin collects everything longer.
func DurationsTable(hist []float64) [][]string {
	out := [][]string{{"duration_h", "events"}}
	for i, v := range hist {
		if v == 0 {
			continue
		}
		label := strconv.Itoa(i + 1)
		if i == len(hist)-1 {
			label += "+"
		}
		out = append(out, []string{label, ff(v)})
	}
	return out
}
