package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	control "rate-ctrl-core/closed_loop/rate_control"
)

type TraceSample struct {
	T        float64
	Setpoint [control.NumAxes]float64
	Gyro     [control.NumAxes]float64
	Output   [control.NumAxes]float64
}

// Trace keeps decimated samples of a run for plotting.
type Trace struct {
	Samples []TraceSample
}

func (tr *Trace) Record(s TraceSample) {
	tr.Samples = append(tr.Samples, s)
}

// SavePlot writes setpoint vs gyro per axis and the controller outputs to a
// PNG/SVG/PDF chosen by the file extension.
func (tr *Trace) SavePlot(path, title string) error {
	if len(tr.Samples) == 0 {
		return fmt.Errorf("trace is empty")
	}

	rates := plot.New()
	rates.Title.Text = title + " rates"
	rates.X.Label.Text = "time (s)"
	rates.Y.Label.Text = "rate (rad/s)"
	rates.Add(plotter.NewGrid())

	outputs := plot.New()
	outputs.Title.Text = title + " outputs"
	outputs.X.Label.Text = "time (s)"
	outputs.Y.Label.Text = "pid output"
	outputs.Add(plotter.NewGrid())

	for _, a := range control.Axes {
		color := plotutil.Color(int(a))

		sp, err := tr.line(func(s TraceSample) float64 { return s.Setpoint[a] })
		if err != nil {
			return err
		}
		sp.LineStyle.Color = color
		sp.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		rates.Add(sp)
		rates.Legend.Add(a.String()+" setpoint", sp)

		gy, err := tr.line(func(s TraceSample) float64 { return s.Gyro[a] })
		if err != nil {
			return err
		}
		gy.LineStyle.Color = color
		rates.Add(gy)
		rates.Legend.Add(a.String()+" gyro", gy)

		out, err := tr.line(func(s TraceSample) float64 { return s.Output[a] })
		if err != nil {
			return err
		}
		out.LineStyle.Color = color
		outputs.Add(out)
		outputs.Legend.Add(a.String(), out)
	}
	rates.Legend.Top = true
	outputs.Legend.Top = true

	if err := rates.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save rate plot: %w", err)
	}
	if err := outputs.Save(10*vg.Inch, 4*vg.Inch, outputPlotPath(path)); err != nil {
		return fmt.Errorf("save output plot: %w", err)
	}
	return nil
}

func (tr *Trace) line(y func(TraceSample) float64) (*plotter.Line, error) {
	pts := make(plotter.XYs, len(tr.Samples))
	for i, s := range tr.Samples {
		pts[i].X = s.T
		pts[i].Y = y(s)
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(1.2)
	return line, nil
}

// outputPlotPath derives "<base>_outputs<ext>" from the rate plot path.
func outputPlotPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_outputs" + ext
}
