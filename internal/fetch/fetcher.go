package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// ErrorKind classifies fetch failures for callers that need to branch
// on the failure mode rather than the message.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindDNSOrConnect     ErrorKind = "dnsOrConnect"
	KindTooManyRedirects ErrorKind = "tooManyRedirects"
	KindHTTPStatus       ErrorKind = "httpStatus"
	KindRobotsDenied     ErrorKind = "robotsDenied"
)

// NetworkError is the failure type for all fetches.
type NetworkError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d %s)", e.URL, e.Kind, e.StatusCode, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *NetworkError) Unwrap() error { return e.Err }

const (
	maxRedirects = 5

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

var errRedirectLimit = errors.New("stopped after 5 redirects")

// Fetcher performs plain GET requests with a fixed browser identity,
// identity transfer encoding, and a bounded redirect chain. One overall
// deadline covers connect, redirects, and the full body read.
type Fetcher struct {
	client    *http.Client
	userAgent string

	respectRobots bool
	robotsMu      sync.Mutex
	robotsCache   map[string]*robotstxt.RobotsData
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithUserAgent overrides the default desktop User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if strings.TrimSpace(ua) != "" {
			f.userAgent = ua
		}
	}
}

// WithRobots enables a robots.txt check before each fetch. Robots
// responses are cached per host for the life of the fetcher (one
// request in practice).
func WithRobots(respect bool) Option {
	return func(f *Fetcher) { f.respectRobots = respect }
}

// New constructs a Fetcher.
func New(opts ...Option) *Fetcher {
	transport := &http.Transport{
		// Identity encoding: the upstream extraction layer works on the
		// raw bytes and the budget governor accounts for them.
		DisableCompression: true,
	}

	f := &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// via includes the initial request, so the nth redirect
				// sees len(via) == n.
				if len(via) > maxRedirects {
					return errRedirectLimit
				}
				return nil
			},
		},
		userAgent:   desktopUserAgent,
		robotsCache: map[string]*robotstxt.RobotsData{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a GET for the URL and returns the response body. Any
// status outside [200,299] is an error carrying code and reason.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if f.respectRobots {
		if err := f.checkRobots(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{Kind: KindDNSOrConnect, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "close")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{
			Kind:       KindHTTPStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	return body, nil
}

func classify(rawURL string, err error) *NetworkError {
	if errors.Is(err, errRedirectLimit) {
		return &NetworkError{Kind: KindTooManyRedirects, URL: rawURL, Err: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if errors.Is(uerr.Err, errRedirectLimit) {
			return &NetworkError{Kind: KindTooManyRedirects, URL: rawURL, Err: err}
		}
		if uerr.Timeout() {
			return &NetworkError{Kind: KindTimeout, URL: rawURL, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &NetworkError{Kind: KindDNSOrConnect, URL: rawURL, Err: err}
}

// checkRobots fetches and caches robots.txt for the URL's host and
// denies the fetch when the desktop agent is disallowed.
func (f *Fetcher) checkRobots(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	f.robotsMu.Lock()
	data, ok := f.robotsCache[u.Host]
	f.robotsMu.Unlock()

	if !ok {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return nil
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			// Unreachable robots.txt does not block the fetch.
			return nil
		}
		defer resp.Body.Close()

		data, err = robotstxt.FromResponse(resp)
		if err != nil {
			return nil
		}

		f.robotsMu.Lock()
		f.robotsCache[u.Host] = data
		f.robotsMu.Unlock()
	}

	if data == nil {
		return nil
	}
	group := data.FindGroup(f.userAgent)
	if group != nil && !group.Test(u.Path) {
		return &NetworkError{Kind: KindRobotsDenied, URL: rawURL, Reason: "disallowed by robots.txt"}
	}
	return nil
}
