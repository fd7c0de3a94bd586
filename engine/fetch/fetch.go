// Package fetch retrieves index and detail pages over HTTP with per-host
// timeouts, browser-like headers and a bounded body size.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/dealflow/pkg/fn"
)

const (
	DefaultTimeout  = 12 * time.Second
	SlowHostTimeout = 7 * time.Second
	MaxBodyBytes    = 4 << 20
	maxRedirects    = 10
)

// DefaultUserAgent mimics a desktop browser; several broker sites refuse
// obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultSlowHosts are broker marketplaces known to stall well past the
// default budget. Their subdomains match too.
var DefaultSlowHosts = []string{
	"bizbuysell.com",
	"bizquest.com",
	"businessesforsale.com",
	"dealstream.com",
}

// ErrBodyTooLarge is returned when a response exceeds the body limit.
var ErrBodyTooLarge = errors.New("fetch: response body too large")

// HTTPError reports a non-2xx response.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

// Page is a fetched document.
type Page struct {
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	Body        []byte
	Elapsed     time.Duration
}

// Config tunes a Fetcher. Zero values fall back to the package defaults.
type Config struct {
	DefaultTimeout  time.Duration
	SlowHostTimeout time.Duration
	// SlowHosts get SlowHostTimeout. Subdomains match too.
	SlowHosts    []string
	MaxBodyBytes int64
	UserAgent    string
	// Transport is wrapped with OpenTelemetry instrumentation.
	Transport http.RoundTripper
}

// Fetcher performs GET requests.
type Fetcher struct {
	client *http.Client
	cfg    Config
}

// New builds a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.SlowHostTimeout <= 0 {
		cfg.SlowHostTimeout = SlowHostTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hosts := make([]string, 0, len(cfg.SlowHosts))
	for _, h := range cfg.SlowHosts {
		if h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), ".")); h != "" {
			hosts = append(hosts, h)
		}
	}
	cfg.SlowHosts = hosts
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
}

// TimeoutFor returns the timeout applied to rawURL when the caller does not
// pass one.
func (f *Fetcher) TimeoutFor(rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return f.cfg.DefaultTimeout
	}
	host := strings.ToLower(u.Hostname())
	for _, slow := range f.cfg.SlowHosts {
		if host == slow || strings.HasSuffix(host, "."+slow) {
			return f.cfg.SlowHostTimeout
		}
	}
	return f.cfg.DefaultTimeout
}

// Fetch GETs rawURL. A timeout of zero or less uses TimeoutFor. Non-2xx
// responses fail with *HTTPError; there are no retries.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) fn.Result[Page] {
	if timeout <= 0 {
		timeout = f.TimeoutFor(rawURL)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fn.Err[Page](fmt.Errorf("fetch %s: %w", rawURL, err))
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fn.Err[Page](fmt.Errorf("fetch %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fn.Err[Page](&HTTPError{URL: rawURL, Status: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return fn.Err[Page](fmt.Errorf("fetch %s: read body: %w", rawURL, err))
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return fn.Err[Page](fmt.Errorf("fetch %s: %w", rawURL, ErrBodyTooLarge))
	}

	return fn.Ok(Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Elapsed:     time.Since(start),
	})
}
