package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fintrack/internal/core"
)

// RenderReserveChart renders a reserve's projected balance as a PNG line
// chart. Point i is plotted on day i of p. A positive goal adds a dashed
// target line.
func RenderReserveChart(title string, p core.Period, res core.ReserveHistoryResult, goal float64) ([]byte, error) {
	if len(res.Points) < 2 {
		return nil, core.InvalidArgument("need at least 2 data points, got %d", len(res.Points))
	}

	start := core.StartOfDay(p.Start)
	xValues := make([]time.Time, len(res.Points))
	balanceY := make([]float64, len(res.Points))
	for i, pt := range res.Points {
		xValues[i] = start.AddDate(0, 0, i)
		balanceY[i] = pt.Balance
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: "Balance",
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("16a34a"), // green-600
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: balanceY,
		},
	}

	if goal > 0 {
		goalY := make([]float64, len(xValues))
		for i := range goalY {
			goalY[i] = goal
		}
		series = append(series, chart.TimeSeries{
			Name: "Goal",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues,
			YValues: goalY,
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("02/01")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
