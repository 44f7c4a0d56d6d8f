package chart

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"callwatch/internal/coingecko"
)

// Options size the rendered image.
type Options struct {
	Width     int
	Height    int
	MaxPoints int
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName builds the PNG name for a coin and window.
func FileName(coinID string, days int) string {
	name := strings.Trim(unsafeName.ReplaceAllString(coinID, "_"), "_")
	if name == "" {
		name = "coin"
	}
	return fmt.Sprintf("%s_%dd.png", name, days)
}

// RenderPNG draws a USD price line for the points and writes it to path.
func RenderPNG(path, title string, points []coingecko.PricePoint, opts Options) error {
	if len(points) < 2 {
		return errors.New("at least two price points are required")
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}

	points = downsample(points, opts.MaxPoints)

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Time
		y[i] = p.PriceUSD
	}

	graph := gochart.Chart{
		Title:  title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatter,
		},
		YAxis: gochart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter(y),
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    "USD",
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer file.Close()

	if err := graph.Render(gochart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// priceFormatter picks enough decimals to keep sub-cent prices readable.
func priceFormatter(values []float64) gochart.ValueFormatter {
	lowest := math.Inf(1)
	for _, v := range values {
		if v > 0 && v < lowest {
			lowest = v
		}
	}
	format := "%.2f"
	if !math.IsInf(lowest, 1) && lowest < 1 {
		places := int(math.Ceil(-math.Log10(lowest))) + 3
		if places > 12 {
			places = 12
		}
		format = fmt.Sprintf("%%.%df", places)
	}
	return func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, format)
	}
}

func downsample(points []coingecko.PricePoint, max int) []coingecko.PricePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]coingecko.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
