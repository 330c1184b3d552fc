package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/perkins/cache"
	"github.com/use-agent/perkins/config"
	"github.com/use-agent/perkins/ledger"
	"github.com/use-agent/perkins/models"
)

func seedLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrape_record.csv")
	l := ledger.New(path)
	for _, key := range []models.ReportKey{
		models.NewReportKey(models.FormCollege, "Alpha College", "2022-2023", ""),
		models.NewReportKey(models.FormCollege, "Beta College", "2022-2023", ""),
		models.NewReportKey(models.FormTopCode, "Alpha College", "2022-2023", "070100"),
	} {
		_, err := l.Add(key, decimal.NewFromInt(12), decimal.RequireFromString("30.5"), key.Slug()+".csv")
		require.NoError(t, err)
	}
	return path
}

func newTestServer(t *testing.T, path string, keys ...string) http.Handler {
	t.Helper()
	cfg := config.Default().Server
	cfg.Mode = "test"
	cfg.APIKeys = keys
	return NewRouter(cfg, cache.New(path, 0), time.Now())
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	path := seedLedger(t)
	w := get(t, newTestServer(t, path, "k"), "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 3, resp.Records)
	assert.Equal(t, path, resp.LedgerPath)
}

func TestHealth_DegradedOnBadLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape_record.csv")
	require.NoError(t, os.WriteFile(path, []byte("not,a,ledger\n"), 0o644))

	w := get(t, newTestServer(t, path), "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestListRecords(t *testing.T) {
	h := newTestServer(t, seedLedger(t))

	tests := []struct {
		name  string
		query string
		count int
	}{
		{"all", "", 3},
		{"by college", "?college=Alpha%20College", 2},
		{"college is trimmed", "?college=%20Alpha%20College%20", 2},
		{"by form", "?form=" + "Form%201%20Part%20E-C%20-%20College", 2},
		{"by code", "?code=070100", 1},
		{"NA code", "?code=NA", 2},
		{"no match", "?year=1999-2000", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, "/api/v1/records"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			var resp models.RecordsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.count, resp.Count)
			assert.Len(t, resp.Records, tt.count)
		})
	}
}

func TestLookupRecord(t *testing.T) {
	h := newTestServer(t, seedLedger(t))

	w := get(t, h, "/api/v1/records/lookup?form=Form%201%20Part%20E-C%20-%20College&college=Alpha%20College&year=2022-2023")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Recorded)
	require.NotNil(t, resp.Record)
	assert.Equal(t, models.NotApplicable, resp.Key.TopCode)
	assert.True(t, resp.Record.Enrollment.Equal(decimal.RequireFromString("30.5")))

	w = get(t, h, "/api/v1/records/lookup?form=Form%201%20Part%20E-C%20-%20College&college=Gamma%20College&year=2022-2023")
	require.Equal(t, http.StatusOK, w.Code)
	resp = models.LookupResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Recorded)
	assert.Nil(t, resp.Record)
}

func TestLookupRecord_MissingParams(t *testing.T) {
	w := get(t, newTestServer(t, seedLedger(t)), "/api/v1/records/lookup?college=Alpha%20College")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeInvalidInput)
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, seedLedger(t), "secret")

	w := get(t, h, "/api/v1/records")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(t, h, "/api/v1/records", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(t, h, "/api/v1/records", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/api/v1/records", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code, "health is public")
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.Mode = "test"
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 2
	h := NewRouter(cfg, cache.New(seedLedger(t), 0), time.Now())

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/records").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/records").Code)

	w := get(t, h, "/api/v1/records")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeRateLimited)
}
