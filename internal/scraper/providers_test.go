package scraper

import (
	"testing"
	"time"
)

func TestClassifyAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"AAAAAAAAAAAAAAAAAAAAAMLh", keyKindBearer},
		{"sd_live_0123456789", keyKindAPIKey},
		{"", keyKindAPIKey},
	}
	for _, tt := range tests {
		if got := classifyAPIKey(tt.key); got != tt.expected {
			t.Errorf("classifyAPIKey(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}

func TestParseV2Payload(t *testing.T) {
	body := []byte(`{
		"data": [
			{
				"id": "1900000000000000001",
				"text": "shipping today https://t.co/abc123",
				"created_at": "2025-06-02T10:30:00Z",
				"public_metrics": {"retweet_count": 5, "reply_count": 2, "like_count": 40, "quote_count": 1, "impression_count": 900},
				"referenced_tweets": [{"type": "quoted", "id": "1899999999999999999"}]
			},
			{
				"id": "1900000000000000002",
				"text": "plain post",
				"created_at": "not-a-date",
				"public_metrics": {}
			}
		]
	}`)

	posts, err := parseV2Payload(body, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	first := posts[0]
	if first.ID != "1900000000000000001" {
		t.Errorf("id = %s", first.ID)
	}
	if first.Content != "shipping today" {
		t.Errorf("share link not stripped: %q", first.Content)
	}
	if first.URL != "https://x.com/acme/status/1900000000000000001" {
		t.Errorf("url = %s", first.URL)
	}
	if first.Metrics.Likes != 40 || first.Metrics.Views != 900 {
		t.Errorf("metrics = %+v", first.Metrics)
	}
	if !first.IsQuote || first.QuotedURL == "" {
		t.Errorf("quote not detected: %+v", first)
	}
	if first.PostedAtGuessed {
		t.Error("valid timestamp marked guessed")
	}
	want := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	if !first.PostedAt.Equal(want) {
		t.Errorf("posted_at = %v, want %v", first.PostedAt, want)
	}

	if !posts[1].PostedAtGuessed {
		t.Error("unparseable timestamp should be flagged guessed")
	}
}

func TestParseV2Payload_ErrorBody(t *testing.T) {
	body := []byte(`{"errors": [{"message": "invalid token"}]}`)
	if _, err := parseV2Payload(body, "acme"); err == nil {
		t.Fatal("expected error for error payload")
	}

	body = []byte(`{"title": "Unauthorized", "detail": "bearer token rejected"}`)
	if _, err := parseV2Payload(body, "acme"); err == nil {
		t.Fatal("expected error for title/detail payload")
	}
}

func TestParseSocialDataPayload(t *testing.T) {
	body := []byte(`{
		"tweets": [
			{
				"id_str": "1900000000000000010",
				"full_text": "RT @other: the original",
				"tweet_created_at": "Mon Jun 02 10:30:00 +0000 2025",
				"user": {"screen_name": "acme", "name": "Acme Inc"},
				"favorite_count": 10,
				"retweet_count": 3,
				"entities": {"media": [{"media_url_https": "https://pbs.twimg.com/media/a.jpg"}]}
			}
		]
	}`)

	posts, err := parseSocialDataPayload(body, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}

	post := posts[0]
	if !post.IsRetweet {
		t.Error("RT @ prefix should mark retweet")
	}
	if post.AuthorName != "Acme Inc" {
		t.Errorf("author name = %q", post.AuthorName)
	}
	if len(post.MediaURLs) != 1 {
		t.Errorf("media = %v", post.MediaURLs)
	}
	if post.PostedAtGuessed {
		t.Error("ruby-date timestamp marked guessed")
	}
}

func TestParseSocialDataPayload_PostsKeyAndError(t *testing.T) {
	body := []byte(`{"posts": [{"id_str": "1", "text": "hi"}]}`)
	posts, err := parseSocialDataPayload(body, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post from posts key, got %d", len(posts))
	}

	body = []byte(`{"status": "error", "message": "over quota"}`)
	if _, err := parseSocialDataPayload(body, "acme"); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestParseTwitterAPIPayload(t *testing.T) {
	body := []byte(`{
		"status": "ok",
		"data": {"tweets": [
			{
				"id": "1900000000000000020",
				"url": "https://x.com/acme/status/1900000000000000020",
				"text": "hello world",
				"createdAt": "Mon Jun 02 10:30:00 +0000 2025",
				"likeCount": 7,
				"viewCount": 210,
				"author": {"userName": "acme", "name": "Acme Inc"}
			}
		]}
	}`)

	posts, err := parseTwitterAPIPayload(body, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Metrics.Views != 210 {
		t.Errorf("views = %d", posts[0].Metrics.Views)
	}

	body = []byte(`{"status": "error", "msg": "bad key"}`)
	if _, err := parseTwitterAPIPayload(body, "acme"); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestParsePayload_UnknownParser(t *testing.T) {
	if _, err := parsePayload("bogus", []byte("{}"), "acme"); err == nil {
		t.Fatal("expected error for unknown parser")
	}
}

func TestParsePostTime(t *testing.T) {
	got, guessed := parsePostTime("2025-06-02T10:30:00Z", time.RFC3339)
	if guessed {
		t.Error("valid value flagged guessed")
	}
	if got.Year() != 2025 {
		t.Errorf("year = %d", got.Year())
	}

	before := time.Now()
	got, guessed = parsePostTime("", time.RFC3339)
	if !guessed {
		t.Error("empty value should be guessed")
	}
	if got.Before(before) {
		t.Errorf("fallback should be now-ish, got %v", got)
	}
}
