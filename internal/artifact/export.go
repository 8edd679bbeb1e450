package artifact

import (
	"context"
	"path/filepath"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
)

type table struct {
	name    string
	records [][]string
}

func tables(res *engine.Result, sys *config.System) []table {
	var storageNames, zoneNames []string
	if sys != nil {
		for _, s := range sys.Storage {
			storageNames = append(storageNames, s.Name)
		}
		for _, b := range sys.Buses {
			zoneNames = append(zoneNames, b.Name)
		}
	}

	out := []table{
		{FileIndices, IndicesTable(res.Indices)},
		{FileSamples, SamplesTable(res.SampleIndices)},
		{FileConvergence, ConvergenceTable(res.Convergence)},
		{FileHourlyLOLP, SeriesTable("lolp", res.HourlyLOLP)},
		{FileDurations, DurationsTable(res.DurationHistogram)},
	}
	if res.HeatMap != nil {
		out = append(out, table{FileHeatMap, HeatMapTable(res.HeatMap)})
	}
	if tr := res.Trace; tr != nil {
		out = append(out, []table{
			{FileSOC, MatrixTable(storageNames, tr.SOC)},
			{FileCurtailment, SeriesTable("curtailment_mw", tr.Curtailment)},
			{FileWind, MatrixTable(zoneNames, tr.Wind)},
			{FileSolar, MatrixTable(zoneNames, tr.Solar)},
		}...)
	}
	return out
}

// Table renders the single table stored under file name
func Table(res *engine.Result, sys *config.System, name string) ([][]string, bool) {
	for _, t := range tables(res, sys) {
		if t.name == name {
			return t.records, true
		}
	}
	return nil, false
}

// Export writes every table of res to sink and returns the written names in
// order. sys supplies storage and zone names; it may be nil. Trace tables are
// skipped when res carries no trace.
func Export(ctx context.Context, sink Sink, res *engine.Result, sys *config.System) ([]string, error) {
	ts := tables(res, sys)
	written := make([]string, 0, len(ts))
	for _, t := range ts {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		body, err := encode(t.records)
		if err != nil {
			return written, err
		}
		if err := sink.Put(ctx, t.name, body); err != nil {
			return written, err
		}
		written = append(written, t.name)
	}
	return written, nil
}

// Publish exports res to every output configured in out, under a
// subdirectory or key prefix named after runID, and returns the location of
// each sink. An empty out publishes nothing.
func Publish(ctx context.Context, out config.OutputConfig, runID string, res *engine.Result, sys *config.System) ([]string, error) {
	var sinks []Sink
	if out.Dir != "" {
		dir, err := NewDirSink(filepath.Join(out.Dir, runID))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
	}
	if out.S3 != nil {
		s3, err := NewS3Sink(ctx, *out.S3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3.WithPrefix(runID))
	}

	var locations []string
	for _, sink := range sinks {
		if _, err := Export(ctx, sink, res, sys); err != nil {
			return locations, err
		}
		locations = append(locations, sink.Location(""))
	}
	return locations, nil
}
