package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/campaignkit/socialscrape/internal/models"
)

// desktopUserAgent is sent on mirror and feed requests; several mirror
// operators serve a degraded page to unknown clients.
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Credentials is the operator-supplied upstream access configuration. A
// zero value means only the unauthenticated channels (mirror, feed) are
// usable.
type Credentials struct {
	APIKey        string
	SessionCookie string
	CSRFToken     string
}

func (c Credentials) HasAPIKey() bool  { return c.APIKey != "" }
func (c Credentials) HasSession() bool { return c.SessionCookie != "" }

// Channel is one acquisition strategy. Fetch returns the raw (already
// filtered) posts plus a label identifying the specific provider or host
// that produced them, for the outcome's channelUsed field.
type Channel interface {
	Name() string
	Available(creds Credentials) bool
	Fetch(ctx context.Context, req models.ScrapeRequest, creds Credentials) (posts []models.Post, used string, err error)
}

var (
	shareLinkPattern = regexp.MustCompile(`https?://t\.co/\S+`)
	statusIDPattern  = regexp.MustCompile(`/status(?:es)?/(\d+)`)
)

// cleanContent strips platform share-link artifacts and normalizes the text
// to NFC; mirror instances in particular emit decomposed unicode.
func cleanContent(s string) string {
	s = shareLinkPattern.ReplaceAllString(s, "")
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}

// extractStatusID pulls the numeric post id out of a status URL, returning
// "" when the URL has no recognizable id.
func extractStatusID(url string) string {
	matches := statusIDPattern.FindStringSubmatch(url)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

func postURL(handle, id string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", handle, id)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
