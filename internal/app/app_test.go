package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/config"
	"callwatch/internal/storage"
)

const (
	daiLower    = "0x6b175474e89094c44da98b954eedeac495271d0f"
	daiChecksum = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	daiPayload  = `{"id":"dai","name":"Dai","symbol":"dai","asset_platform_id":"ethereum",
		"market_data":{"current_price":{"usd":1.0},"market_cap":{"usd":5000000000}}}`
)

func testApp(t *testing.T, coingeckoURL string) *App {
	t.Helper()
	cfg := &config.Config{
		OpenAI: config.OpenAIConfig{
			APIKey:         "test-key",
			RequestTimeout: 5 * time.Second,
		},
		CoinGecko: config.CoinGeckoConfig{
			BaseURL:        coingeckoURL,
			RequestTimeout: 5 * time.Second,
		},
		Pipeline: config.PipelineConfig{MessageDeadline: 10 * time.Second},
		Charts: config.ChartsConfig{
			OutputDir: t.TempDir(),
			Days:      []int{1, 7},
			Width:     640,
			Height:    360,
		},
	}
	return NewApp(cfg, zerolog.Nop())
}

func coingeckoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/coins/ethereum/contract/"+daiLower:
			_, _ = w.Write([]byte(daiPayload))
		case r.URL.Path == "/coins/dai/market_chart":
			_, _ = w.Write([]byte(`{"prices":[[1700000000000,0.999],[1700003600000,1.001],[1700007200000,1.0]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDetect(t *testing.T) {
	a := testApp(t, "")
	var out bytes.Buffer

	require.NoError(t, a.Detect(&out, "fresh call "+daiLower+" lfg"))
	assert.Contains(t, out.String(), "ethereum")
	assert.Contains(t, out.String(), daiChecksum)

	out.Reset()
	require.NoError(t, a.Detect(&out, "nothing to see"))
	assert.Equal(t, "no contract address detected\n", out.String())
}

func TestDetectRejectsBadSlugOverride(t *testing.T) {
	a := testApp(t, "")
	a.Config.Chains.Slugs = map[string]string{"dogechain": "doge"}
	assert.Error(t, a.Detect(&bytes.Buffer{}, daiLower))
}

func TestAnalyzeDryRunPrintsPrompt(t *testing.T) {
	srv := coingeckoServer(t)
	a := testApp(t, srv.URL)
	var out bytes.Buffer

	err := a.Analyze(context.Background(), &out, AnalyzeOptions{Text: "call " + daiLower, DryRun: true})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "address: "+daiChecksum)
	assert.Contains(t, text, "Dai")
	assert.Contains(t, text, "--- system ---")
	assert.Contains(t, text, "--- user ---")
}

func TestAnalyzeRequiresAPIKey(t *testing.T) {
	a := testApp(t, "")
	a.Config.OpenAI.APIKey = ""
	err := a.Analyze(context.Background(), &bytes.Buffer{}, AnalyzeOptions{Text: "hello", DryRun: true})
	assert.ErrorContains(t, err, "openai.api_key")

	assert.Error(t, a.Analyze(context.Background(), &bytes.Buffer{}, AnalyzeOptions{Text: "  "}))
}

func TestChartByContractAddress(t *testing.T) {
	srv := coingeckoServer(t)
	a := testApp(t, srv.URL)
	outDir := t.TempDir()
	var out bytes.Buffer

	err := a.Chart(context.Background(), &out, ChartOptions{Target: daiLower, OutputDir: outDir})
	require.NoError(t, err)

	for _, name := range []string{"dai_1d.png", "dai_7d.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)
}

func TestChartByCoinIDWithOverride(t *testing.T) {
	srv := coingeckoServer(t)
	a := testApp(t, srv.URL)
	var out bytes.Buffer

	require.NoError(t, a.Chart(context.Background(), &out, ChartOptions{Target: "DAI", Days: []int{30}}))
	_, err := os.Stat(filepath.Join(a.Config.Charts.OutputDir, "dai_30d.png"))
	assert.NoError(t, err)
}

func TestChartUnknownCoin(t *testing.T) {
	srv := coingeckoServer(t)
	a := testApp(t, srv.URL)
	err := a.Chart(context.Background(), &bytes.Buffer{}, ChartOptions{Target: "nope"})
	assert.Error(t, err)
}

func TestHistoryAndPruneNeedDatabase(t *testing.T) {
	a := testApp(t, "")
	ctx := context.Background()

	assert.ErrorContains(t, a.History(ctx, &bytes.Buffer{}, HistoryOptions{Limit: 5}), "database not configured")
	assert.ErrorContains(t, a.Prune(ctx, &bytes.Buffer{}, PruneOptions{OlderThan: time.Hour}), "database not configured")
	assert.ErrorContains(t, a.Prune(ctx, &bytes.Buffer{}, PruneOptions{}), "--older-than")
}

func TestRunValidatesRelaySettings(t *testing.T) {
	a := testApp(t, "")
	assert.ErrorContains(t, a.Run(context.Background()), "telegram.bot_token")
}

func TestRenderingAndRetentionSettings(t *testing.T) {
	a := testApp(t, "")
	a.Config.Charts.MaxPoints = 120
	a.Config.Retention = config.RetentionConfig{Interval: time.Hour, StartupDelay: time.Minute, RunImmediately: true}

	assert.Equal(t, 120, a.chartOptions().MaxPoints)
	assert.Equal(t, 640, a.chartOptions().Width)

	sched := a.retentionSchedule()
	assert.Equal(t, "retention", sched.Name)
	assert.Equal(t, time.Hour, sched.Interval)
	assert.Equal(t, time.Minute, sched.StartupDelay)
	assert.True(t, sched.RunImmediately)
}

func TestChartDownsamplesToMaxPoints(t *testing.T) {
	var prices []string
	for i := 0; i < 400; i++ {
		prices = append(prices, fmt.Sprintf("[%d,%g]", 1700000000000+int64(i)*60000, 1+float64(i%7)/100))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prices":[` + strings.Join(prices, ",") + `]}`))
	}))
	t.Cleanup(srv.Close)

	a := testApp(t, srv.URL)
	a.Config.Charts.MaxPoints = 50
	require.NoError(t, a.Chart(context.Background(), &bytes.Buffer{}, ChartOptions{Target: "dai", Days: []int{1}}))

	_, err := os.Stat(filepath.Join(a.Config.Charts.OutputDir, "dai_1d.png"))
	assert.NoError(t, err)
}

func TestWriteHistory(t *testing.T) {
	addr := daiLower
	failure := "send: Bad Request\nchat not found"
	records := []storage.AnalysisRecord{
		{MessageID: 7, Address: &addr, Status: storage.StatusRelayed, CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{MessageID: 8, Status: storage.StatusFailed, Error: &failure, CreatedAt: time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)},
	}

	var out bytes.Buffer
	require.NoError(t, writeHistory(&out, records, 42))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "2024-05-01T12:00:00Z")
	assert.Contains(t, lines[1], daiLower)
	assert.Contains(t, lines[2], "send: Bad Request chat not found")
	assert.Equal(t, "showing 2 of 42 analyses", lines[3])
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "abcdefg...", shorten("abcdefghijklmnop", 10))
	assert.Equal(t, "-", deref(nil))
	assert.Equal(t, "a b", sanitizeInline("a\nb"))
}
