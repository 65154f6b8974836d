package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	app := fiber.New()
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandler(t *testing.T) {
	body := scrape(t)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "portfolio_account_lock_wait_seconds")
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{ServiceName: "mw-test", SkipPaths: []string{"/health"}}))
	app.Get("/api/v1/accounts/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("healthy") })

	for _, path := range []string{"/api/v1/accounts/acc-1", "/api/v1/accounts/acc-2", "/health"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	body := scrape(t)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/accounts/:id",service="mw-test",status="200"} 2`)
	assert.NotContains(t, body, `path="/health"`)
}

func TestRecordStorageAndMessaging(t *testing.T) {
	RecordDBPoolStats("store-test", 5, 10)
	RecordDBQuery("store-test", "ledger_apply", 50*time.Millisecond)
	RecordKafkaMessageProduced("store-test", "portfolio.trade.executed")
	RecordKafkaMessageConsumed("store-test", "portfolio.trade.executed", "portfolio-audit")

	body := scrape(t)
	assert.Contains(t, body, `db_pool_connections_used{service="store-test"} 5`)
	assert.Contains(t, body, `db_pool_connections_max{service="store-test"} 10`)
	assert.Contains(t, body, `db_query_duration_seconds_count{query_type="ledger_apply",service="store-test"} 1`)
	assert.Contains(t, body, `kafka_messages_produced_total{service="store-test",topic="portfolio.trade.executed"} 1`)
	assert.Contains(t, body, `kafka_messages_consumed_total{consumer_group="portfolio-audit",service="store-test",topic="portfolio.trade.executed"} 1`)
}

func TestRecordBusinessMetrics(t *testing.T) {
	RecordTrade("buy", "auto", "balanced")
	RecordDecision("balanced", "noop")
	RecordLedgerRejection("LEDGER_INSUFFICIENT_FUNDS")
	RecordQuoteLookup("redis", "hit")
	ObserveLockWait(2 * time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, `portfolio_trades_executed_total{side="buy",source="auto",strategy="balanced"} 1`)
	assert.Contains(t, body, `portfolio_decisions_total{outcome="noop",strategy="balanced"} 1`)
	assert.Contains(t, body, `portfolio_ledger_rejections_total{code="LEDGER_INSUFFICIENT_FUNDS"} 1`)
	assert.Contains(t, body, `portfolio_quote_lookups_total{result="hit",source="redis"} 1`)
	assert.Contains(t, body, "portfolio_account_lock_wait_seconds_count 1")
}
