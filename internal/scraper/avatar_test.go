package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/campaignkit/socialscrape/internal/cache"
)

func newTestAvatarResolver(transport *httpmock.MockTransport, c cache.Cache) *AvatarResolver {
	r := NewAvatarResolver(c, testLogger(), NewMetrics())
	r.proxyClient = &http.Client{Transport: transport}
	r.lookupClient = &http.Client{Transport: transport}
	return r
}

func TestAvatarResolver_ProxyFirst(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", "https://unavatar.io/twitter/acme",
		httpmock.NewStringResponder(200, ""))

	r := newTestAvatarResolver(transport, nil)
	result := r.Resolve(context.Background(), "acme", Credentials{})

	if result.URL != "https://unavatar.io/twitter/acme" {
		t.Errorf("url = %q", result.URL)
	}
	if result.Source != "proxy" {
		t.Errorf("source = %q", result.Source)
	}
}

func TestAvatarResolver_FallsBackToProvider(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", `=~unavatar\.io`,
		httpmock.NewStringResponder(503, ""))
	transport.RegisterResponder("GET", `=~api\.socialdata\.tools/twitter/user/acme`,
		httpmock.NewStringResponder(200, `{"profile_image_url_https": "https://pbs.twimg.com/profile_images/1/a_normal.jpg"}`))

	r := newTestAvatarResolver(transport, nil)
	result := r.Resolve(context.Background(), "acme", Credentials{APIKey: "sd_key"})

	if result.Source != "provider" {
		t.Fatalf("source = %q (url %q)", result.Source, result.URL)
	}
	if result.URL != "https://pbs.twimg.com/profile_images/1/a_400x400.jpg" {
		t.Errorf("thumbnail variant not upgraded: %q", result.URL)
	}
}

func TestAvatarResolver_ProviderSkippedForBearerKey(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", `=~unavatar\.io`,
		httpmock.NewStringResponder(503, ""))
	transport.RegisterResponder("GET", `=~followbutton`,
		httpmock.NewStringResponder(200, `[{"profile_image_url": "https://pbs.twimg.com/profile_images/2/b_normal.png"}]`))

	r := newTestAvatarResolver(transport, nil)
	result := r.Resolve(context.Background(), "acme", Credentials{APIKey: "AAAAbearer"})

	// Bearer keys do not fit the user-info endpoint; the cascade should jump
	// straight to the follow-button lookup.
	if result.Source != "followbutton" {
		t.Fatalf("source = %q (url %q)", result.Source, result.URL)
	}
	if result.URL != "https://pbs.twimg.com/profile_images/2/b_400x400.png" {
		t.Errorf("url = %q", result.URL)
	}
}

func TestAvatarResolver_AllStepsFail(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("HEAD", `=~unavatar\.io`,
		httpmock.NewStringResponder(500, ""))
	transport.RegisterResponder("GET", `=~followbutton`,
		httpmock.NewStringResponder(200, `[]`))

	r := newTestAvatarResolver(transport, nil)
	result := r.Resolve(context.Background(), "acme", Credentials{})

	if result.URL != "" || result.Source != "" {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestAvatarResolver_CachesSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("HEAD", "https://unavatar.io/twitter/acme",
		func(r *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(200, ""), nil
		})

	r := newTestAvatarResolver(transport, cache.NewMemory(0))
	r.Resolve(context.Background(), "acme", Credentials{})
	r.Resolve(context.Background(), "Acme", Credentials{})

	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d (cache key should be case-insensitive)", calls)
	}
}

// jsonCache stores values the way the Redis backend does: marshalled on Set,
// decoded into generic interface{} values on Get.
type jsonCache struct {
	entries map[string][]byte
}

func newJSONCache() *jsonCache {
	return &jsonCache{entries: map[string][]byte{}}
}

func (c *jsonCache) Get(key string) (interface{}, bool) {
	data, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

func (c *jsonCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, 0)
}

func (c *jsonCache) SetWithTTL(key string, value interface{}, _ time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.entries[key] = data
}

func (c *jsonCache) Delete(key string) { delete(c.entries, key) }

func (c *jsonCache) Clear() { c.entries = map[string][]byte{} }

func TestAvatarResolver_CacheHitSurvivesJSONRoundTrip(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("HEAD", "https://unavatar.io/twitter/acme",
		func(r *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(200, ""), nil
		})

	r := newTestAvatarResolver(transport, newJSONCache())
	first := r.Resolve(context.Background(), "acme", Credentials{})
	second := r.Resolve(context.Background(), "acme", Credentials{})

	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d (JSON-decoded cache entry not recognized)", calls)
	}
	if second != first {
		t.Errorf("cached result %+v differs from original %+v", second, first)
	}
}

func TestUpgradeAvatarURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.test/a_normal.jpg", "https://x.test/a_400x400.jpg"},
		{"https://x.test/a_bigger.jpg", "https://x.test/a_bigger.jpg"},
	}
	for _, tt := range tests {
		if got := upgradeAvatarURL(tt.in); got != tt.want {
			t.Errorf("upgradeAvatarURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
