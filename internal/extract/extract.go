// Package extract converts HTML documents into plain text suitable for
// chunking and embedding. Readability extraction strips navigation and
// boilerplate; when it fails the whole document body is used instead.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/reqflow/reqflow/internal/log"
	"github.com/reqflow/reqflow/internal/security"
)

// ErrExtract is the root of all extraction failures.
var ErrExtract = errors.New("content extraction failure")

const (
	// maxResponseSize caps fetched document bodies at 10MB.
	maxResponseSize = 10 << 20

	fetchTimeout = 30 * time.Second
)

// Extractor fetches and converts HTML pages to plain text.
type Extractor struct {
	client    *http.Client
	validator *security.URLValidator
	logger    log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAllowPrivateHosts disables outbound URL validation. Intended for
// intranet sources and tests; fetches then reach loopback and private
// addresses.
func WithAllowPrivateHosts() Option {
	return func(e *Extractor) { e.validator = nil }
}

// New creates an Extractor. Fetched URLs are validated against private
// networks and metadata endpoints, including at DNS resolution time.
func New(logger log.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Extractor{
		validator: security.NewURLValidator(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.client = &http.Client{Timeout: fetchTimeout}
	if e.validator != nil {
		e.client.Transport = e.validator.SafeTransport()
		e.client.CheckRedirect = e.validator.CheckRedirect
	}
	return e
}

// Document is the extracted form of an HTML page.
type Document struct {
	Title string
	Text  string
}

// Fetch downloads the page at rawURL and extracts its text content.
func (e *Extractor) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", ErrExtract, rawURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrExtract, pageURL.Scheme)
	}
	if e.validator != nil {
		if err := e.validator.Validate(rawURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtract, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrExtract, err)
	}
	req.Header.Set("User-Agent", "reqflow/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrExtract, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", ErrExtract, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrExtract, rawURL, err)
	}

	doc, err := e.FromHTML(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("extracted page",
		"url", rawURL,
		"title", doc.Title,
		"text_bytes", len(doc.Text))
	return doc, nil
}

// FromHTML extracts text from an HTML document. pageURL resolves relative
// links inside the page and may be nil.
func (e *Extractor) FromHTML(r io.Reader, pageURL *url.URL) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading document: %v", ErrExtract, err)
	}

	article, err := readability.FromReader(strings.NewReader(string(raw)), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return &Document{
			Title: article.Title,
			Text:  normalize(article.TextContent),
		}, nil
	}
	if err != nil {
		e.logger.Debug("readability extraction failed, falling back to full body", "error", err)
	}

	return fallbackExtract(strings.NewReader(string(raw)))
}

// fallbackExtract takes the whole document body when readability finds no
// article content. Script and style elements are removed first.
func fallbackExtract(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %v", ErrExtract, err)
	}

	doc.Find("script, style, noscript, nav, footer").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := normalize(doc.Find("body").Text())
	if text == "" {
		return nil, fmt.Errorf("%w: document has no text content", ErrExtract)
	}
	return &Document{Title: title, Text: text}, nil
}

// normalize collapses runs of blank lines and trims surrounding whitespace
// so the chunker sees clean paragraph boundaries.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
