// Package extract turns an article link into body text or a terminal
// non-text state, with bounded durable retries.
package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/meridian-research/newsaudit/internal/resilience"
)

// Sentinel outcomes the controller maps to terminal states.
var (
	// ErrRobotsDisallowed means robots policy forbids fetching the link.
	ErrRobotsDisallowed = errors.New("extract: robots policy disallows fetch")

	// ErrNotExtractable means the content is a non-text deliverable (PDF,
	// binary document) with no body text to extract.
	ErrNotExtractable = errors.New("extract: content is not extractable text")

	// ErrLowQuality means the fetch succeeded but the text failed the
	// minimum-quality check. Retried like a fetch failure.
	ErrLowQuality = errors.New("extract: extracted text failed quality check")
)

const maxBodyBytes = 10 << 20

// challengeSignatures mark anti-bot interstitials masquerading as content.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// binaryContentTypes are deliverables extraction skips by design.
var binaryContentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats",
	"application/octet-stream",
	"application/zip",
}

// Extraction is the product of a successful fetch.
type Extraction struct {
	Title string
	Text  string
}

// Fetcher retrieves a link and converts it to markdown body text. Robots
// rules are fetched once per host and held read-only for the process
// lifetime.
type Fetcher struct {
	http      *http.Client
	converter *md.Converter
	userAgent string
	minLen    int

	robotsMu sync.Mutex
	robots   map[string]*robotsRules
}

// NewFetcher creates a Fetcher with the given timeout, user agent, and
// minimum acceptable text length.
func NewFetcher(timeout time.Duration, userAgent string, minTextLength int) *Fetcher {
	return &Fetcher{
		http:      &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
		userAgent: userAgent,
		minLen:    minTextLength,
		robots:    make(map[string]*robotsRules),
	}
}

// Fetch retrieves the link and returns its body text, or one of the
// sentinel errors above. Transport failures and transient HTTP statuses are
// wrapped as resilience.TransientError.
func (f *Fetcher) Fetch(ctx context.Context, link string) (*Extraction, error) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return nil, eris.Wrapf(err, "extract: invalid link %q", link)
	}

	if !f.robotsAllowed(ctx, parsed) {
		return nil, ErrRobotsDisallowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, eris.Wrap(err, "extract: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: fetch"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("extract: fetch %s: status %d", link, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, bt := range binaryContentTypes {
		if strings.HasPrefix(contentType, bt) {
			return nil, ErrNotExtractable
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: read body"), 0)
	}

	ext, err := f.toMarkdown(body)
	if err != nil {
		return nil, err
	}
	if qErr := f.checkQuality(ext.Text); qErr != nil {
		return nil, qErr
	}
	return ext, nil
}

// toMarkdown strips boilerplate and converts the page to markdown text.
func (f *Fetcher) toMarkdown(html []byte) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, header, footer, aside, form, noscript, iframe").Remove()

	root := doc.Find("article, main").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	text := f.converter.Convert(root)
	text = norm.NFC.String(text)
	text = collapseBlankLines(strings.TrimSpace(text))

	return &Extraction{Title: title, Text: text}, nil
}

// checkQuality enforces the minimum-quality gate: enough text, and no
// challenge-page signature in a short body.
func (f *Fetcher) checkQuality(text string) error {
	if len(text) < f.minLen {
		return eris.Wrapf(ErrLowQuality, "text length %d below minimum %d", len(text), f.minLen)
	}
	lower := strings.ToLower(text)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(text) < 1000 {
			return eris.Wrapf(ErrLowQuality, "challenge signature %q", sig)
		}
	}
	return nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLines.ReplaceAllString(s, "\n\n")
}

// --- robots ---

// robotsRules holds the Disallow prefixes applying to our user agent.
type robotsRules struct {
	disallow []string
}

func (r *robotsRules) allows(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, p := range r.disallow {
		if p != "" && strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

// robotsAllowed checks the host's robots.txt for our user agent. The rules
// are fetched at most once per host. An unreachable or missing robots.txt
// allows fetching.
func (f *Fetcher) robotsAllowed(ctx context.Context, u *url.URL) bool {
	f.robotsMu.Lock()
	rules, ok := f.robots[u.Host]
	f.robotsMu.Unlock()

	if !ok {
		rules = f.loadRobots(ctx, u)
		f.robotsMu.Lock()
		f.robots[u.Host] = rules
		f.robotsMu.Unlock()
	}
	return rules.allows(u.Path)
}

func (f *Fetcher) loadRobots(ctx context.Context, u *url.URL) *robotsRules {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &robotsRules{}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return &robotsRules{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &robotsRules{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &robotsRules{}
	}
	return parseRobots(string(body), f.userAgent)
}

// parseRobots extracts Disallow rules from the groups matching the given
// user agent (by token prefix) or the wildcard agent.
func parseRobots(body, userAgent string) *robotsRules {
	rules := &robotsRules{}
	agentToken := strings.ToLower(robotToken(userAgent))

	applies := false
	sawAgentLine := false
	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			// A new group starts after a non-agent line.
			if sawAgentLine {
				applies = applies || agent == "*" || strings.Contains(agentToken, agent)
			} else {
				applies = agent == "*" || strings.Contains(agentToken, agent)
				sawAgentLine = true
			}
		case "disallow":
			sawAgentLine = false
			if applies && value != "" {
				rules.disallow = append(rules.disallow, value)
			}
		default:
			sawAgentLine = false
		}
	}
	return rules
}

// robotToken extracts the product token from a full User-Agent header value,
// e.g. "NewsAuditBot" from "Mozilla/5.0 (compatible; NewsAuditBot/1.0)".
func robotToken(userAgent string) string {
	if i := strings.Index(userAgent, "compatible;"); i >= 0 {
		rest := strings.TrimSpace(userAgent[i+len("compatible;"):])
		if j := strings.IndexAny(rest, "/) "); j > 0 {
			return rest[:j]
		}
		return rest
	}
	if j := strings.IndexAny(userAgent, "/ "); j > 0 {
		return userAgent[:j]
	}
	return userAgent
}
