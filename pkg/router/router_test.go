package router

import (
	"context"
	"errors"
	"testing"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/rotation"
)

func testConfig() *config.Config {
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"groq":   {Type: config.ProviderTypeOpenAI, BaseURL: "https://groq.example"},
			"gemini": {Type: config.ProviderTypeGemini, BaseURL: "https://gemini.example"},
		},
		Profiles: map[string]config.ProfileConfig{
			"groq-a":     {Provider: "groq", Models: []string{"model-a"}},
			"groq-b":     {Provider: "groq", Models: []string{"model-b"}},
			"gemini-pro": {Provider: "gemini", Models: []string{"gemini-pro"}},
		},
		Aliases: map[string]config.AliasConfig{
			"chat": {Chain: []string{"groq-a", "groq-b", "gemini-pro"}, MainLength: 2},
			"solo": {Chain: []string{"groq-a"}, MainLength: 1},
		},
	}
}

func newTestRouter() *Router {
	return New(testConfig(), rotation.NewIndex(nil, nil), nil)
}

func TestResolveUnknownAlias(t *testing.T) {
	r := newTestRouter()
	_, err := r.Resolve(context.Background(), "nope")
	var notFound *AliasNotFoundError
	if !errors.As(err, &notFound) || notFound.Alias != "nope" {
		t.Fatalf("got %v, want AliasNotFoundError", err)
	}
}

func TestResolveRotatesMainPool(t *testing.T) {
	r := newTestRouter()
	ctx := context.Background()

	heads := make(map[string]int)
	for i := 0; i < 10; i++ {
		route, err := r.Resolve(ctx, "chat")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		heads[route.Profiles[0].Name]++

		// The fallback tail never changes.
		if len(route.Profiles) != 2 || route.Profiles[1].Name != "gemini-pro" {
			t.Fatalf("effective chain = %+v", route.Profiles)
		}
	}

	// 10 requests over a 2-profile main pool: 5 each.
	if heads["groq-a"] != 5 || heads["groq-b"] != 5 {
		t.Fatalf("head distribution = %v, want 5/5", heads)
	}
}

func TestResolveSingleMain(t *testing.T) {
	r := newTestRouter()
	route, err := r.Resolve(context.Background(), "solo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(route.Profiles) != 1 || route.Profiles[0].Name != "groq-a" {
		t.Fatalf("chain = %+v", route.Profiles)
	}
	if route.Profiles[0].Provider != "groq" || route.Profiles[0].Models[0] != "model-a" {
		t.Fatalf("profile not resolved: %+v", route.Profiles[0])
	}
}

func TestAliasesSorted(t *testing.T) {
	r := newTestRouter()
	got := r.Aliases()
	if len(got) != 2 || got[0] != "chat" || got[1] != "solo" {
		t.Fatalf("aliases = %v", got)
	}
}
