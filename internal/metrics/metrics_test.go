package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	m := New()

	m.HTTPRequest("GET", "GET /api/plants", 200)
	m.HTTPRequest("GET", "GET /api/plants", 200)
	m.SetDueTasks(3)
	m.Notification("sent")
	m.Notification("duplicate")
	m.TaskCompleted("Water")
	m.ExternalCall("identify", nil)
	m.ExternalCall("wiki", errors.New("timeout"))
	m.CatalogSynced(12, nil)
	m.CatalogSynced(0, errors.New("boom"))

	body := scrape(t, m)
	for _, line := range []string{
		`leafcare_http_requests_total{code="200",method="GET",route="GET /api/plants"} 2`,
		`leafcare_due_tasks 3`,
		`leafcare_notifications_total{result="duplicate"} 1`,
		`leafcare_task_completions_total{type="Water"} 1`,
		`leafcare_external_calls_total{result="error",service="wiki"} 1`,
		`leafcare_catalog_entries 12`,
		`leafcare_catalog_syncs_total{result="error"} 1`,
		`go_goroutines`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.HTTPRequest("GET", "/", 200)
		m.SetDueTasks(1)
		m.Notification("sent")
		m.TaskCompleted("Water")
		m.ExternalCall("wiki", nil)
		m.CatalogSynced(1, nil)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
