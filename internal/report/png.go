package report

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trajectory.report/internal/fusion"
)

// RenderPNG draws s into an image at path. The format follows the file
// extension (png, svg, pdf, ...); sizes are in centimetres.
func RenderPNG(path, title string, s Series, widthCM, heightCM float64) error {
	p, err := newPlot(title, s)
	if err != nil {
		return err
	}
	if err := p.Save(vg.Length(widthCM)*vg.Centimeter, vg.Length(heightCM)*vg.Centimeter, path); err != nil {
		return fmt.Errorf("save plot %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WritePNG streams the PNG rendering of s to w.
func WritePNG(w io.Writer, title string, s Series, widthCM, heightCM float64) error {
	p, err := newPlot(title, s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(vg.Length(widthCM)*vg.Centimeter, vg.Length(heightCM)*vg.Centimeter, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func newPlot(title string, s Series) (*plot.Plot, error) {
	if s.empty() {
		return nil, ErrEmpty
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(s.Raw) > 0 {
		sc, err := plotter.NewScatter(toXYs(s.Raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", SeriesRaw, err)
		}
		sc.GlyphStyle.Color = withAlpha(rawColor, 0x80)
		sc.GlyphStyle.Radius = vg.Points(1.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(SeriesRaw, sc)
	}
	if len(s.Truth) > 0 {
		ln, err := plotter.NewLine(toXYs(s.Truth))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", SeriesTruth, err)
		}
		ln.Color = truthColor
		ln.Width = vg.Points(1.5)
		ln.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ln)
		p.Legend.Add(SeriesTruth, ln)
	}
	if len(s.Estimate) > 0 {
		ln, err := plotter.NewLine(toXYs(s.Estimate))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", SeriesEstimate, err)
		}
		ln.Color = estimateColor
		ln.Width = vg.Points(1.5)
		p.Add(ln)
		p.Legend.Add(SeriesEstimate, ln)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

func toXYs(pts []fusion.Vec2) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, v := range pts {
		xys[i] = plotter.XY{X: v.X, Y: v.Y}
	}
	return xys
}

func withAlpha(c color.RGBA, a uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
}

// IsImagePath reports whether path has an extension RenderPNG can write.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".svg", ".pdf", ".eps", ".tif", ".tiff":
		return true
	}
	return false
}
