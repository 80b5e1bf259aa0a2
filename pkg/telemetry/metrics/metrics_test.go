package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestCollectorsAppearInScrape(t *testing.T) {
	m := New()
	m.RecordRequest("chat", "ok", 0.42)
	m.RecordProviderRequest("groq", "llama-big")
	m.RecordProviderError("groq", "rate_limit")
	m.RecordFallback("chat")
	m.SetKeypoolGauge("groq", "available", 7)
	m.RecordCacheEvent("hit")
	m.RecordAgentIterations("assistant", 3)
	m.RecordToolCall("get_weather", "ok")

	body := scrape(t, m)
	for _, want := range []string{
		`relay_requests_total{alias="chat",outcome="ok"} 1`,
		`relay_provider_requests_total{model="llama-big",provider="groq"} 1`,
		`relay_provider_errors_total{kind="rate_limit",provider="groq"} 1`,
		`relay_fallbacks_total{alias="chat"} 1`,
		`relay_keypool_keys{provider="groq",state="available"} 7`,
		`relay_cache_events_total{event="hit"} 1`,
		`relay_tool_calls_total{status="ok",tool="get_weather"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if !strings.Contains(body, "relay_agent_iterations_bucket") {
		t.Error("scrape missing agent iteration histogram")
	}
}

func TestGaugeOverwrites(t *testing.T) {
	m := New()
	m.SetKeypoolGauge("groq", "quarantined", 3)
	m.SetKeypoolGauge("groq", "quarantined", 1)

	if body := scrape(t, m); !strings.Contains(body, `relay_keypool_keys{provider="groq",state="quarantined"} 1`) {
		t.Error("gauge did not take the latest value")
	}
}
