package stats

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	maxBarContexts = 30
	xAxisRotate    = 45
)

// Bar colors by coverage threshold.
const (
	colorGood = "#91cc75"
	colorWarn = "#fac858"
	colorBad  = "#ee6666"
)

// WriteHTML renders the report as a chart page at path: an overall coverage
// gauge plus a bar chart of the lowest-covered contexts.
func WriteHTML(rep Report, path string) error {
	page := components.NewPage()
	page.PageTitle = "Translation coverage"
	page.SetLayout(components.PageCenterLayout)
	page.AddCharts(coverageGauge(rep), contextBars(rep))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart page: %w", err)
	}

	renderErr := page.Render(f)

	closeErr := f.Close()
	if renderErr != nil {
		return fmt.Errorf("render chart page: %w", renderErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close chart page: %w", closeErr)
	}

	return nil
}

func coverageGauge(rep Report) *charts.Gauge {
	gauge := charts.NewGauge()

	gauge.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Overall coverage", Subtitle: rep.Document}),
	)

	gauge.AddSeries("coverage", []opts.GaugeData{{Name: "finished", Value: round1(rep.Coverage)}})

	return gauge
}

func contextBars(rep Report) *charts.Bar {
	contexts := lowestCovered(rep.Contexts, maxBarContexts)

	names := make([]string, len(contexts))
	data := make([]opts.BarData, len(contexts))

	for i, cs := range contexts {
		names[i] = contextLabel(cs.Name)
		data[i] = opts.BarData{
			Value:     round1(cs.Coverage),
			ItemStyle: &opts.ItemStyle{Color: coverageColor(cs.Coverage)},
		}
	}

	bar := charts.NewBar()

	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Lowest-covered contexts"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%"}),
	)

	bar.SetXAxis(names)
	bar.AddSeries("Coverage", data)

	return bar
}

// lowestCovered returns up to limit contexts in ascending coverage order,
// document order breaking ties.
func lowestCovered(contexts []ContextStats, limit int) []ContextStats {
	sorted := make([]ContextStats, len(contexts))
	copy(sorted, contexts)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Coverage < sorted[j].Coverage
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	return sorted
}

func coverageColor(v float64) string {
	switch {
	case v >= coverageHigh:
		return colorGood
	case v >= coverageLow:
		return colorWarn
	default:
		return colorBad
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
