package sweep

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{
	"process_variance", "measurement_variance", "estimates",
	"mae", "rmse", "max_error", "raw_rmse", "improvement",
	"innovation_rms", "error",
}

// WriteCSV writes one row per result in the given order. Metric columns
// are empty when the dataset had no truth or the point failed.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			formatFloat(r.Params.ProcessVariance),
			formatFloat(r.Params.MeasurementVariance),
			strconv.Itoa(r.Estimates),
			"", "", "", "", "",
			formatFloat(r.InnovationRMS),
			r.Error,
		}
		if m := r.Metrics; m != nil {
			row[3] = formatFloat(m.MAE)
			row[4] = formatFloat(m.RMSE)
			row[5] = formatFloat(m.MaxError)
			row[6] = formatFloat(m.RawRMSE)
			row[7] = formatFloat(m.Improvement)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
