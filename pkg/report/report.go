// Package report writes the QC artifacts of a pipeline run: an HTML report
// with respiration and state-occupancy charts, and per-state preview slices.
// Report failures are never fatal to the run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"sweepvol/internal/models"
)

// Write renders the run report into dir/report.html and saves one preview
// image per reconstructed volume.
func Write(dir string, seq *models.SliceSequence, sig *models.RespirationSignal, asg *models.StateAssignment, volumes []*models.Volume) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	page := components.NewPage()
	page.AddCharts(
		respirationChart(sig),
		occupancyChart(asg),
		positionChart(seq, asg),
	)

	f, err := os.Create(filepath.Join(dir, "report.html"))
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}

	for _, vol := range volumes {
		name := filepath.Join(dir, fmt.Sprintf("state_%02d_preview.jpg", vol.State))
		if err := SavePreview(name, vol); err != nil {
			return fmt.Errorf("writing preview for state %d: %w", vol.State, err)
		}
	}
	return nil
}

// respirationChart plots the raw and filtered surrogate traces over
// acquisition index.
func respirationChart(sig *models.RespirationSignal) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Respiration surrogate",
			Subtitle: "raw and filtered trace by acquisition index",
		}),
	)

	xs := make([]string, sig.Len())
	raw := make([]opts.LineData, sig.Len())
	filtered := make([]opts.LineData, sig.Len())
	for i, p := range sig.Points {
		xs[i] = strconv.Itoa(p.AcqIndex)
		raw[i] = opts.LineData{Value: p.Raw}
		filtered[i] = opts.LineData{Value: p.Filtered}
	}

	line.SetXAxis(xs).
		AddSeries("raw", raw).
		AddSeries("filtered", filtered)
	return line
}

// occupancyChart shows the per-state slice counts; equal-occupancy binning
// should keep all bars within one slice of each other.
func occupancyChart(asg *models.StateAssignment) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "State occupancy"}),
	)

	counts := asg.Counts()
	xs := make([]string, len(counts))
	data := make([]opts.BarData, len(counts))
	for s, c := range counts {
		xs[s] = fmt.Sprintf("state %d", s)
		data[s] = opts.BarData{Value: c}
	}

	bar.SetXAxis(xs).AddSeries("slices", data)
	return bar
}

// positionChart scatters retained slice-axis positions per state, making
// through-plane sampling gaps visible.
func positionChart(seq *models.SliceSequence, asg *models.StateAssignment) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Sample positions per state",
			Subtitle: "slice-axis position (mm) vs state",
		}),
	)

	perState := make([][]opts.ScatterData, asg.NStates)
	for i, s := range asg.States {
		if s == models.StateUnset {
			continue
		}
		perState[s] = append(perState[s], opts.ScatterData{
			Value: []interface{}{seq.Slices[i].Position, s},
		})
	}
	for s, data := range perState {
		scatter.AddSeries(fmt.Sprintf("state %d", s), data)
	}
	return scatter
}
