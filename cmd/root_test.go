package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tradefair-crawler/internal/app"
	"github.com/JakeFAU/tradefair-crawler/internal/config"
)

func newFairServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"view": `<div class="event-item"><a href="/metal/o-targach">` +
				`<h3 class="title">Metal</h3><span class="date">14-16.10.2099</span></a></div>`,
		})
	})
	mux.HandleFunc("/metal/lista-wystawcow", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<table>
<tr><td><a class="exhibitor-name" href="/wystawca/acme">Acme Corp</a></td><td>Polska</td><td>A-1</td></tr>
<tr><td><a class="exhibitor-name" href="/wystawca/beta">Beta SA</a></td><td>Czechy</td><td>B-2</td></tr>
<tr><td><a class="exhibitor-name" href="/wystawca/gamma">Gamma</a></td><td>Polska</td><td>C-3</td></tr>
</table>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, siteURL, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "site:\n" +
		"  base_url: " + siteURL + "\n" +
		"  events_search_url: " + siteURL + "/api/events/search\n" +
		"scraping:\n" +
		"  retry_delay: 1ms\n" +
		"  delay_between_requests: 0s\n" +
		"  page_delay: 0s\n" +
		"logging:\n" +
		"  file: \"\"\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestDiscoverListsEventsWithCounts(t *testing.T) {
	srv := newFairServer(t)
	code, out, errOut := run(t, "discover", "--config", writeConfig(t, srv.URL, ""))

	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "EVENT")
	assert.Regexp(t, `Metal\s+14-16\.10\.2099\s+3\s+`, out)
	assert.Contains(t, out, srv.URL+"/metal/lista-wystawcow")
}

func TestRunDryRunReportsStats(t *testing.T) {
	srv := newFairServer(t)
	code, out, errOut := run(t, "run", "--dry-run", "--config", writeConfig(t, srv.URL, ""))

	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 events found")
	assert.Contains(t, out, "1 processed")
	assert.Contains(t, out, "3 companies added")
}

func TestRunWithoutDSNFails(t *testing.T) {
	t.Setenv("TRADEFAIR_DB_DSN", "")
	srv := newFairServer(t)
	code, _, errOut := run(t, "run", "--config", writeConfig(t, srv.URL, ""))

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "db.dsn is required")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("TRADEFAIR_SCRAPING_MAX_PAGES", "0")
	srv := newFairServer(t)
	code, _, errOut := run(t, "discover", "--config", writeConfig(t, srv.URL, ""))

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load config")
}

func TestScheduleRejectsBadCron(t *testing.T) {
	srv := newFairServer(t)
	cfg := writeConfig(t, srv.URL, "schedule:\n  cron: \"not a schedule\"\n")

	origFactory := newApp
	t.Cleanup(func() { newApp = origFactory })
	newApp = func(ctx context.Context, c config.Config, logger *zap.Logger, _ app.Mode) (*app.App, error) {
		return origFactory(ctx, c, logger, app.DryRun)
	}

	code, _, errOut := run(t, "schedule", "--config", cfg)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "parse cron expression")
}
