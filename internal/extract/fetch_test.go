package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/newsaudit/internal/resilience"
)

const testUA = "Mozilla/5.0 (compatible; NewsAuditBot/1.0)"

func articleHTML(body string) string {
	return `<html><head><title>Test Article</title></head><body>
<nav>Home | About</nav>
<article><h1>Headline</h1><p>` + body + `</p></article>
<footer>Copyright</footer>
<script>analytics()</script>
</body></html>`
}

func longBody() string {
	return strings.Repeat("Reported earnings grew significantly across all segments this quarter. ", 10)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ExtractsTitleAndBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML(longBody())))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	ext, err := f.Fetch(context.Background(), srv.URL+"/story")
	require.NoError(t, err)

	assert.Equal(t, "Test Article", ext.Title)
	assert.Contains(t, ext.Text, "Reported earnings grew")
	assert.NotContains(t, ext.Text, "Home | About")
	assert.NotContains(t, ext.Text, "analytics()")
	assert.NotContains(t, ext.Text, "Copyright")
}

func TestFetch_RobotsDisallowed(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML(longBody())))
	})

	f := NewFetcher(5*time.Second, testUA, 250)

	_, err := f.Fetch(context.Background(), srv.URL+"/private/story")
	assert.ErrorIs(t, err, ErrRobotsDisallowed)

	// Paths outside the disallowed prefix still fetch.
	_, err = f.Fetch(context.Background(), srv.URL+"/public/story")
	assert.NoError(t, err)
}

func TestFetch_RobotsAgentSpecificRule(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: newsauditbot\nDisallow: /\n\nUser-agent: otherbot\nDisallow: /other/\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML(longBody())))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/story")
	assert.ErrorIs(t, err, ErrRobotsDisallowed)
}

func TestFetch_BinaryContentNotExtractable(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/report.pdf")
	assert.ErrorIs(t, err, ErrNotExtractable)
}

func TestFetch_TransientStatusWrapped(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/story")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestFetch_PermanentStatusNotTransient(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestFetch_ShortTextFailsQualityGate(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML("Too short.")))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/stub")
	assert.ErrorIs(t, err, ErrLowQuality)
}

func TestFetch_ChallengePageRejected(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		page := articleHTML("Checking your browser before accessing this site. " +
			strings.Repeat("Please wait. ", 30))
		_, _ = w.Write([]byte(page))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), srv.URL+"/story")
	assert.ErrorIs(t, err, ErrLowQuality)
}

func TestFetch_InvalidLink(t *testing.T) {
	f := NewFetcher(5*time.Second, testUA, 250)
	_, err := f.Fetch(context.Background(), "::not a url::")
	assert.Error(t, err)
}

func TestFetch_RobotsFetchedOncePerHost(t *testing.T) {
	var robotsHits int
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits++
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML(longBody())))
	})

	f := NewFetcher(5*time.Second, testUA, 250)
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/story")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, robotsHits)
}

func TestParseRobots(t *testing.T) {
	rules := parseRobots("User-agent: *\nDisallow: /admin/\nDisallow: /tmp/\n", testUA)
	assert.False(t, rules.allows("/admin/page"))
	assert.False(t, rules.allows("/tmp/x"))
	assert.True(t, rules.allows("/news/x"))
	assert.True(t, rules.allows(""))
}

func TestRobotToken(t *testing.T) {
	assert.Equal(t, "NewsAuditBot", robotToken(testUA))
	assert.Equal(t, "curl", robotToken("curl/8.0"))
}
