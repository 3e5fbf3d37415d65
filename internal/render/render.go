// Package render draws run artifacts: concentration profile and activation
// radius charts as PNG, and the profile's evolution as an MJPEG (AVI)
// animation. Charts are file artifacts; nothing here is interactive.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/icza/mjpeg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/nvandessel/rbdc/internal/activation"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/solver"
)

// Chart dimensions.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch

	// DefaultFPS is the animation frame rate when none is given.
	DefaultFPS = 10

	jpegQuality = 90
)

var (
	profileColor   = color.NRGBA{R: 31, G: 119, B: 180, A: 255}
	thresholdColor = color.NRGBA{R: 214, G: 39, B: 40, A: 255}
	radiusColor    = color.NRGBA{R: 44, G: 160, B: 44, A: 255}
)

// Frame is one recorded concentration profile and its evaluation.
type Frame struct {
	Time      float64
	Radii     []float64
	Values    []float64
	Threshold float64
	Radius    float64
}

// Recorder collects a Frame at every recorded time of a run. Pass
// Recorder.Observe to simulation.WithObserver.
type Recorder struct {
	threshold float64
	extent    float64
	radii     []float64
	Frames    []Frame
}

// NewRecorder prepares a recorder for runs of p.
func NewRecorder(p models.ParameterSet) *Recorder {
	p = p.WithDefaults()
	return &Recorder{
		threshold: p.ActivationThreshold,
		extent:    p.Grid().Extent(),
	}
}

// Observe stores the snapshot as a frame.
func (r *Recorder) Observe(s solver.Snapshot) error {
	if r.radii == nil {
		r.radii = append([]float64(nil), s.Radii...)
	}
	values := append([]float64(nil), s.Values...)
	res := activation.Evaluate(activation.Profile{
		Radii:  r.radii,
		Values: values,
		Extent: r.extent,
	}, r.threshold)
	r.Frames = append(r.Frames, Frame{
		Time:      s.Time,
		Radii:     r.radii,
		Values:    values,
		Threshold: r.threshold,
		Radius:    res.Radius,
	})
	return nil
}

// PeakFrame returns the frame with the largest activation radius, the
// earliest on ties. ok is false when no frames were recorded.
func (r *Recorder) PeakFrame() (f Frame, ok bool) {
	for i, fr := range r.Frames {
		if i == 0 || fr.Radius > f.Radius {
			f = fr
		}
	}
	return f, len(r.Frames) > 0
}

// ProfilePlot charts concentration against distance from the source, with
// the threshold and the activation radius marked. yMax > 0 fixes the
// vertical range.
func ProfilePlot(f Frame, yMax float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Concentration profile at t = %.4g", f.Time)
	p.X.Label.Text = "Distance from capsule"
	p.Y.Label.Text = "Concentration"

	n := min(len(f.Radii), len(f.Values))
	xy := make(plotter.XYs, n)
	for i := range n {
		xy[i].X = f.Radii[i]
		xy[i].Y = f.Values[i]
	}
	if yMax <= 0 {
		yMax = max(f.Threshold, 1e-12)
		if n > 0 {
			yMax = max(yMax, floats.Max(f.Values[:n]))
		}
		yMax *= 1.05
	}
	xMax := 0.0
	if n > 0 {
		xMax = f.Radii[n-1]
	}

	profile, err := plotter.NewLine(xy)
	if err != nil {
		return nil, fmt.Errorf("profile line: %w", err)
	}
	profile.Color = profileColor
	profile.Width = vg.Points(1.5)

	threshold, err := plotter.NewLine(plotter.XYs{{X: 0, Y: f.Threshold}, {X: xMax, Y: f.Threshold}})
	if err != nil {
		return nil, fmt.Errorf("threshold line: %w", err)
	}
	threshold.Color = thresholdColor
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	radius, err := plotter.NewLine(plotter.XYs{{X: f.Radius, Y: 0}, {X: f.Radius, Y: yMax}})
	if err != nil {
		return nil, fmt.Errorf("radius line: %w", err)
	}
	radius.Color = radiusColor
	radius.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}

	p.Add(profile, threshold, radius)
	p.Legend.Top = true
	p.Legend.Add("concentration", profile)
	p.Legend.Add("threshold", threshold)
	p.Legend.Add(fmt.Sprintf("activation radius %.4g", f.Radius), radius)
	p.X.Min = 0
	p.Y.Min = 0
	p.Y.Max = yMax
	return p, nil
}

// SeriesPlot charts activation radius against time.
func SeriesPlot(series []models.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Activation radius"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Radius"

	xy := make(plotter.XYs, len(series))
	for i, s := range series {
		xy[i].X = s.Time
		xy[i].Y = s.Radius
	}
	line, points, err := plotter.NewLinePoints(xy)
	if err != nil {
		return nil, fmt.Errorf("radius series: %w", err)
	}
	line.Color = radiusColor
	points.Color = radiusColor
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(1.5)
	p.Add(line, points)
	p.X.Min = 0
	p.Y.Min = 0
	return p, nil
}

// WritePNG encodes p at the standard chart size.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("encoding chart: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes p to path.
func SavePNG(path string, p *plot.Plot) error {
	return writeFile(path, func(w io.Writer) error { return WritePNG(w, p) })
}

// SaveAnimation writes frames to path as an MJPEG AVI with a shared
// vertical range. fps <= 0 uses DefaultFPS.
func SaveAnimation(path string, frames []Frame, fps int) error {
	if len(frames) == 0 {
		return &models.ValidationError{Field: "frames", Reason: "nothing to animate"}
	}
	if !strings.EqualFold(filepath.Ext(path), ".avi") {
		return &models.ValidationError{Field: "path", Value: path, Reason: "animation must be written as .avi"}
	}
	if fps <= 0 {
		fps = DefaultFPS
	}

	var yMax float64
	for _, f := range frames {
		yMax = max(yMax, f.Threshold)
		if len(f.Values) > 0 {
			yMax = max(yMax, floats.Max(f.Values))
		}
	}
	yMax = max(yMax*1.05, 1e-12)

	wPx := int32(Width.Dots(vgimg.DefaultDPI))
	hPx := int32(Height.Dots(vgimg.DefaultDPI))
	aw, err := mjpeg.New(path, wPx, hPx, int32(fps))
	if err != nil {
		return &models.IOError{Op: "create", Path: path, Err: err}
	}

	var buf bytes.Buffer
	for i, f := range frames {
		p, err := ProfilePlot(f, yMax)
		if err != nil {
			aw.Close()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		c := vgimg.New(Width, Height)
		p.Draw(draw.New(c))

		buf.Reset()
		if err := jpeg.Encode(&buf, c.Image(), &jpeg.Options{Quality: jpegQuality}); err != nil {
			aw.Close()
			return fmt.Errorf("frame %d: encoding: %w", i, err)
		}
		if err := aw.AddFrame(buf.Bytes()); err != nil {
			aw.Close()
			return &models.IOError{Op: "write", Path: path, Err: err}
		}
	}
	if err := aw.Close(); err != nil {
		return &models.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &models.IOError{Op: "create directory", Path: dir, Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &models.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &models.IOError{Op: "close", Path: path, Err: cerr}
		}
	}()
	if err := write(f); err != nil {
		return &models.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
