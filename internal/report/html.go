package report

import (
	"bytes"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderHTML writes an interactive scatter page of s to w.
func RenderHTML(w io.Writer, title, subtitle string, s Series) error {
	if s.empty() {
		return ErrEmpty
	}
	minX, maxX, minY, maxY := bounds(s)
	pad := 0.05 * math.Max(maxX-minX, maxY-minY)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "960px", Height: "720px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Min: round3(minX - pad), Max: round3(maxX + pad), Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: round3(minY - pad), Max: round3(maxY + pad), Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	if len(s.Raw) > 0 {
		scatter.AddSeries(SeriesRaw, scatterData(s.Raw), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	if len(s.Truth) > 0 {
		scatter.AddSeries(SeriesTruth, scatterData(s.Truth), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	}
	if len(s.Estimate) > 0 {
		scatter.AddSeries(SeriesEstimate, scatterData(s.Estimate), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func scatterData(pts []fusion.Vec2) []opts.ScatterData {
	data := make([]opts.ScatterData, len(pts))
	for i, v := range pts {
		data[i] = opts.ScatterData{Value: []interface{}{v.X, v.Y}}
	}
	return data
}

func bounds(s Series) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, pts := range [][]fusion.Vec2{s.Raw, s.Truth, s.Estimate} {
		for _, v := range pts {
			minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
			minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
		}
	}
	return minX, maxX, minY, maxY
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
