package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campaignkit/socialscrape/internal/cache"
	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
)

const (
	avatarProxyTimeout  = 5 * time.Second
	avatarLookupTimeout = 10 * time.Second
	avatarCacheTTL      = 24 * time.Hour

	avatarProxyURL    = "https://unavatar.io/twitter/"
	followButtonURL   = "https://cdn.syndication.twimg.com/widgets/followbutton/info.json"
	avatarUserInfoURL = "https://api.socialdata.tools/twitter/user/"
	avatarCacheKeyPfx = "avatar:"
)

// avatarFieldNames are the JSON keys providers have been seen using for the
// profile image URL, in preference order.
var avatarFieldNames = []string{
	"profile_image_url_https",
	"profile_image_url",
	"avatar",
	"profile_pic_url",
	"image",
}

// AvatarResolver finds a profile image URL for a handle by cascading over
// independent lookups. Every step treats failure as "try the next"; the
// resolver never returns an error, only an empty result.
type AvatarResolver struct {
	proxyClient  *http.Client
	lookupClient *http.Client
	cache        cache.Cache
	logger       *logging.Logger
	metrics      *Metrics
}

func NewAvatarResolver(c cache.Cache, logger *logging.Logger, metrics *Metrics) *AvatarResolver {
	return &AvatarResolver{
		proxyClient:  newHTTPClient(avatarProxyTimeout),
		lookupClient: newHTTPClient(avatarLookupTimeout),
		cache:        c,
		logger:       logger,
		metrics:      metrics,
	}
}

// Resolve returns the avatar URL for handle, or an empty result when every
// step failed.
func (r *AvatarResolver) Resolve(ctx context.Context, handle string, creds Credentials) models.AvatarResult {
	if result, ok := r.cachedResult(handle); ok {
		return result
	}

	result := r.resolve(ctx, handle, creds)

	if result.URL != "" && r.cache != nil {
		r.cache.SetWithTTL(avatarCacheKeyPfx+strings.ToLower(handle), result, avatarCacheTTL)
	}
	return result
}

func (r *AvatarResolver) cachedResult(handle string) (models.AvatarResult, bool) {
	if r.cache == nil {
		return models.AvatarResult{}, false
	}
	cached, ok := r.cache.Get(avatarCacheKeyPfx + strings.ToLower(handle))
	if !ok {
		return models.AvatarResult{}, false
	}

	if result, ok := cached.(models.AvatarResult); ok {
		return result, true
	}

	// Redis round-trips values through JSON; re-decode into the typed form.
	raw, err := json.Marshal(cached)
	if err != nil {
		return models.AvatarResult{}, false
	}
	var result models.AvatarResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.AvatarResult{}, false
	}
	if result.URL == "" {
		return models.AvatarResult{}, false
	}
	return result, true
}

func (r *AvatarResolver) resolve(ctx context.Context, handle string, creds Credentials) models.AvatarResult {
	if u := r.tryProxy(ctx, handle); u != "" {
		return models.AvatarResult{URL: u, Source: "proxy"}
	}

	if creds.HasAPIKey() && classifyAPIKey(creds.APIKey) == keyKindAPIKey {
		if u := r.tryUserInfo(ctx, handle, creds); u != "" {
			return models.AvatarResult{URL: u, Source: "provider"}
		}
	}

	if u := r.tryFollowButton(ctx, handle); u != "" {
		return models.AvatarResult{URL: u, Source: "followbutton"}
	}

	r.logger.Debug("Avatar resolution exhausted all steps", logging.WithField("handle", handle))
	return models.AvatarResult{}
}

// tryProxy verifies the generic avatar-proxy URL with a HEAD request so a
// dead proxy never gets handed to the dashboard.
func (r *AvatarResolver) tryProxy(ctx context.Context, handle string) string {
	proxyURL := avatarProxyURL + url.PathEscape(handle)

	httpReq, err := http.NewRequestWithContext(ctx, "HEAD", proxyURL, nil)
	if err != nil {
		return ""
	}

	resp, err := r.proxyClient.Do(httpReq)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return proxyURL
}

// tryUserInfo asks a provider user-info endpoint, tolerating the several
// field names providers use for the avatar URL.
func (r *AvatarResolver) tryUserInfo(ctx context.Context, handle string, creds Credentials) string {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", avatarUserInfoURL+url.PathEscape(handle), nil)
	if err != nil {
		return ""
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := r.lookupClient.Do(httpReq)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	for _, field := range avatarFieldNames {
		if u, ok := payload[field].(string); ok && u != "" {
			return upgradeAvatarURL(u)
		}
	}
	return ""
}

func (r *AvatarResolver) tryFollowButton(ctx context.Context, handle string) string {
	reqURL := fmt.Sprintf("%s?screen_names=%s", followButtonURL, url.QueryEscape(handle))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return ""
	}

	resp, err := r.lookupClient.Do(httpReq)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var payload []struct {
		ProfileImageURL string `json:"profile_image_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload) == 0 || payload[0].ProfileImageURL == "" {
		return ""
	}
	return upgradeAvatarURL(payload[0].ProfileImageURL)
}

// upgradeAvatarURL swaps the _normal thumbnail variant for the larger one.
func upgradeAvatarURL(u string) string {
	return strings.Replace(u, "_normal.", "_400x400.", 1)
}
