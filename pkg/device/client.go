package device

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the address of the controller in access-point mode.
	DefaultBaseURL = "http://192.168.4.1"

	// DefaultTimeout bounds every request to the device.
	DefaultTimeout = 3 * time.Second

	// maxBodySize caps how much of a response is read. Status pages are tiny.
	maxBodySize = 64 << 10
)

// Client talks to the desk controller over plain HTTP GETs.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	httpClient *http.Client
	parser     *StatusParser
}

// NewClient creates a client for baseURL. A zero timeout means DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: NormalizeBaseURL(baseURL),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		parser: defaultStatusParser,
	}
}

// SetParser replaces the height extraction cascade.
func (c *Client) SetParser(p *StatusParser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parser = p
}

// NormalizeBaseURL strips trailing slashes and adds http:// when no scheme
// is given.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return u
}

// BaseURL returns the normalized base URL in use.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL points the client to another device. In-flight requests keep
// the old address.
func (c *Client) SetBaseURL(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = NormalizeBaseURL(raw)
}

func (c *Client) requestURL(path string) (string, error) {
	base := c.BaseURL()
	full := base + "/" + path
	u, err := url.Parse(full)
	if err != nil {
		return "", pkgerrors.Wrapf(ErrBadURL, "%s: %v", full, err)
	}
	if u.Host == "" {
		return "", pkgerrors.Wrapf(ErrBadURL, "%s: missing host", full)
	}
	return full, nil
}

// Get requests path (already encoded) and returns the body text.
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	u, err := c.requestURL(path)
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"url": u,
	}).Trace("sending device request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", pkgerrors.Wrapf(ErrBadURL, "%s: %v", u, err)
	}
	// Device state must always be fresh.
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(u, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Debugf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", classifyTransportError(u, err)
	}

	logrus.WithFields(logrus.Fields{
		"url":  u,
		"code": resp.StatusCode,
		"size": len(b),
	}).Trace("got device response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", pkgerrors.Wrapf(ErrBadStatusCode, "GET %s: got %d", u, resp.StatusCode)
	}

	if !utf8.Valid(b) {
		return "", pkgerrors.Wrapf(ErrUndecodableBody, "GET %s", u)
	}

	return string(b), nil
}

func classifyTransportError(u string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return pkgerrors.Wrapf(ErrTimeout, "GET %s: %v", u, err)
	}
	return pkgerrors.Wrapf(ErrUnreachable, "GET %s: %v", u, err)
}

// FetchStatus returns the raw status text.
func (c *Client) FetchStatus(ctx context.Context) (string, error) {
	return c.Get(ctx, "status")
}

// FetchHeight fetches the status page and extracts the current height.
// A reachable device with an unrecognizable page yields ErrParseFailure.
func (c *Client) FetchHeight(ctx context.Context) (int, error) {
	text, err := c.FetchStatus(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	parser := c.parser
	c.mu.RUnlock()

	h, err := parser.ParseHeight(text)
	if err != nil {
		logrus.WithField("text", truncate(text, 200)).Debug("no height in status text")
		return 0, err
	}
	return h, nil
}

// FetchLimits fetches and parses the travel limits.
func (c *Client) FetchLimits(ctx context.Context) (Limits, error) {
	text, err := c.Get(ctx, "limits")
	if err != nil {
		return Limits{}, err
	}
	return ParseLimits(text)
}

// SendCommand sends cmd as a single percent-encoded path segment. The
// response body is ignored.
func (c *Client) SendCommand(ctx context.Context, cmd string) error {
	_, err := c.Get(ctx, EncodeCommand(cmd))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to send command %q", cmd)
	}
	logrus.WithField("command", cmd).Debug("command sent")
	return nil
}

// Probe checks that the device answers its status endpoint without looking
// at the content.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.FetchStatus(ctx)
	return err
}

// TestConnection reports whether a desk controller answers at the base URL.
// Plain HTTP success is not enough, the liveness marker must be present.
func (c *Client) TestConnection(ctx context.Context) bool {
	text, err := c.FetchStatus(ctx)
	if err != nil {
		logrus.WithError(err).Debug("connection test failed")
		return false
	}
	return HasLivenessMarker(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
