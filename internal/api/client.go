package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// DefaultSessionCookie is the cookie the backend authenticates sessions with.
const DefaultSessionCookie = "calldesk_session"

const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// SessionCookie, when set, is stored in the jar for BaseURL before the first request.
	SessionCookie string
	CookieName    string

	// HTTPClient overrides the transport. Its Jar is replaced if nil.
	HTTPClient *stdhttp.Client
}

// Client issues JSON requests to the backend with cookie credentials.
type Client struct {
	base *url.URL
	http *stdhttp.Client
	log  *zerolog.Logger
}

// New builds a client for the given base URL.
func New(opts Options, logger *zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &stdhttp.Client{Timeout: opts.Timeout}
	}
	if httpClient.Jar == nil {
		jar, jarErr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jarErr != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", jarErr)
		}
		httpClient.Jar = jar
	}

	if opts.SessionCookie != "" {
		name := opts.CookieName
		if name == "" {
			name = DefaultSessionCookie
		}
		httpClient.Jar.SetCookies(base, []*stdhttp.Cookie{{Name: name, Value: opts.SessionCookie, Path: "/"}})
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Client{base: base, http: httpClient, log: logger}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Cookies returns the cookies the jar would send to the backend.
func (c *Client) Cookies() []*stdhttp.Cookie {
	return c.http.Jar.Cookies(c.base)
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, stdhttp.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, stdhttp.MethodPost, path, body, out)
}

// Do sends one request. Any failure is returned as *Error.
// A {"data": ...} envelope is unwrapped before decoding into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse(resp.StatusCode, payload)
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("backend error")
		return apiErr
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("backend request")

	if out == nil {
		return nil
	}
	data := unwrapData(payload)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Status:  resp.StatusCode,
			Code:    CodeDecode,
			Message: fmt.Sprintf("decode response: %v", err),
			cause:   err,
		}
	}
	return nil
}

// send performs the round trip and converts non-HTTP failures into *Error.
func (c *Client) send(ctx context.Context, method, path string, body any, accept string) (*stdhttp.Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, &Error{Code: CodeNetwork, Message: err.Error(), cause: err}
	}

	var reader io.Reader
	if body != nil {
		raw, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return nil, &Error{Code: CodeDecode, Message: fmt.Sprintf("encode request: %v", marshalErr), cause: marshalErr}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := stdhttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Code: CodeNetwork, Message: err.Error(), cause: err}
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	return resp, nil
}

// resolve joins a relative path onto the base URL; absolute URLs pass through.
func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		if _, err := url.Parse(path); err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
		return path, nil
	}
	base := strings.TrimRight(c.base.String(), "/")
	return base + "/" + strings.TrimLeft(path, "/"), nil
}

func unwrapData(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	if data, ok := env["data"]; ok && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return data
	}
	return trimmed
}
