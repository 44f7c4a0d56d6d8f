package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"callwatch/internal/chart"
	"callwatch/internal/detector"
)

// coinLookup is the part of the CoinGecko client the chart command needs.
type coinLookup interface {
	ContractInfo(ctx context.Context, chainSlug, address string) (map[string]any, error)
}

// Chart renders one USD price PNG per requested window for a coin id or a
// contract address.
func (a *App) Chart(ctx context.Context, w io.Writer, opts ChartOptions) error {
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		return errors.New("coin id or contract address is required")
	}

	days := a.Config.ResolveChartDays(opts.Days)
	if len(days) == 0 {
		return errors.New("at least one chart window is required")
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = a.Config.Charts.OutputDir
	}

	client := a.newMarketData()
	coinID, err := a.coinID(ctx, client, target)
	if err != nil {
		return err
	}

	renderOpts := a.chartOptions()
	for _, d := range days {
		points, err := client.MarketChart(ctx, coinID, d)
		if err != nil {
			return fmt.Errorf("market chart for %s (%dd): %w", coinID, d, err)
		}
		if len(points) < 2 {
			a.Logger.Warn().Str("coin_id", coinID).Int("days", d).Int("points", len(points)).Msg("not enough price data; skipping window")
			continue
		}

		path := filepath.Join(outDir, chart.FileName(coinID, d))
		title := fmt.Sprintf("%s %dd", coinID, d)
		if err := chart.RenderPNG(path, title, points, renderOpts); err != nil {
			return err
		}
		a.Logger.Info().Str("coin_id", coinID).Int("days", d).Int("points", len(points)).Str("path", path).Msg("chart written")
		fmt.Fprintln(w, path)
	}
	return nil
}

func (a *App) chartOptions() chart.Options {
	cfg := a.Config.Charts
	return chart.Options{Width: cfg.Width, Height: cfg.Height, MaxPoints: cfg.MaxPoints}
}

// coinID maps a detected contract address to its CoinGecko id and treats any
// other target as an id already.
func (a *App) coinID(ctx context.Context, lookup coinLookup, target string) (string, error) {
	addr, ok := detector.Detect(target)
	if !ok {
		return strings.ToLower(target), nil
	}

	slugs, err := a.slugTable()
	if err != nil {
		return "", err
	}
	slug, ok := slugs.Slug(addr.Platform)
	if !ok {
		return "", fmt.Errorf("no chain slug for platform %s", addr.Platform)
	}

	payload, err := lookup.ContractInfo(ctx, slug, addr.Raw)
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", addr, err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		return "", fmt.Errorf("contract %s has no coin id", addr)
	}
	return id, nil
}
