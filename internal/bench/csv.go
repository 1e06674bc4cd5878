package bench

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteCSV writes one row per sample: the worker count of the run, seconds
// since the run's first sample and the smoothed rate in tasks per second.
func WriteCSV(w io.Writer, results []*Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"workers", "seconds", "tasks_per_second"}); err != nil {
		return err
	}
	for _, r := range results {
		if len(r.Samples) == 0 {
			continue
		}
		t0 := r.Samples[0].Time
		for _, s := range r.Samples {
			row := []string{
				strconv.Itoa(r.Workers),
				strconv.FormatFloat(s.Time.Sub(t0).Seconds(), 'f', 3, 64),
				strconv.FormatFloat(s.Rate, 'f', 4, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
