// Package hostapi talks to the host application's loopback HTTP API.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/egoavara/modmgr/internal/errs"
	"github.com/egoavara/modmgr/internal/logging"
)

// DefaultURL is the host's loopback endpoint.
const DefaultURL = "http://127.0.0.1:41595"

// ErrRequestFailed is returned for transport errors, non-2xx responses and
// non-success envelopes.
var ErrRequestFailed = fmt.Errorf("%w: host api request failed", errs.ErrExternalTool)

// ErrNoToken is returned when application info carries no api token.
var ErrNoToken = fmt.Errorf("%w: host api token", errs.ErrNotFound)

// envelope is the host's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Client calls host API methods. The token is fetched once and cached for the
// life of the client.
type Client struct {
	baseURL string
	http    *http.Client
	log     *log.Logger

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithToken presets the token, skipping the application info lookup.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a client for baseURL (DefaultURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.Or(c.log).WithPrefix("hostapi")
	return c
}

// Token returns the cached api token, fetching it on first use.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	data, err := c.do(ctx, http.MethodGet, "/api/application/info", nil, "")
	if err != nil {
		return "", err
	}

	var info struct {
		Preferences struct {
			Developer struct {
				APIToken string `json:"apiToken"`
			} `json:"developer"`
		} `json:"preferences"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("%w: application info: %v", ErrRequestFailed, err)
	}
	if info.Preferences.Developer.APIToken == "" {
		return "", ErrNoToken
	}
	c.token = info.Preferences.Developer.APIToken
	return c.token, nil
}

// Call invokes namespace.name with args. Nil-valued args are dropped. The
// returned data is the "data" member of the response.
func (c *Client) Call(ctx context.Context, namespace, name string, args map[string]any) (json.RawMessage, error) {
	m, err := Lookup(namespace, name)
	if err != nil {
		return nil, err
	}

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("call", "method", m.Key(), "args", len(args))
	return c.do(ctx, m.HTTP, m.Path(), filterNil(args), token)
}

// Invoke calls a method and decodes its data into out, which may be nil.
func (c *Client) Invoke(ctx context.Context, namespace, name string, args map[string]any, out any) error {
	data, err := c.Call(ctx, namespace, name, args)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s.%s: %v", ErrRequestFailed, namespace, name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, args map[string]any, token string) (json.RawMessage, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	q := u.Query()
	if token != "" {
		q.Set("token", token)
	}

	var body io.Reader
	if method == http.MethodGet {
		for _, k := range sortedKeys(args) {
			q.Set(k, queryValue(args[k]))
		}
	} else {
		if args == nil {
			args = map[string]any{}
		}
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("%w: encode args: %v", errs.ErrInvalidInput, err)
		}
		body = bytes.NewReader(data)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrRequestFailed, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRequestFailed, path, err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("%w: %s: status %q %s", ErrRequestFailed, path, env.Status, env.Message)
	}
	return env.Data, nil
}

func filterNil(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// queryValue formats scalars plainly and everything else as JSON.
func queryValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
