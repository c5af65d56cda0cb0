// Package client is a typed HTTP client for the mbs4 API. The admin CLI uses
// it to drive uploads end to end: file upload, metadata extraction over the
// event stream, and the catalog writes that follow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/mbs4/mbs4/pkg/auth"
	"github.com/pkg/errors"
)

// requestTimeout bounds every plain JSON call. Uploads and the event stream
// run on the caller's context instead.
const requestTimeout = 30 * time.Second

// Client talks to a running server. The cookie jar carries the session
// cookie between the login and token calls; everything after that
// authenticates with the bearer token. Configure the token via Login or
// SetToken before making API calls.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the server at baseURL.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar: jar,
			// Login answers with a redirect; we want that response, not the
			// page it points at.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// SetToken installs a previously issued bearer token, skipping Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the bearer token the client authenticates with.
func (c *Client) Token() string {
	return c.token
}

// Login authenticates with email and password, then trades the session
// cookie for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload := auth.LoginPayload{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", payload, nil); err != nil {
		return err
	}

	tr := auth.TokenResponse{}
	if err := c.getJSON(ctx, "/auth/token", &tr); err != nil {
		return err
	}
	c.token = tr.Token

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.WithStack(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(method, path, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// apiError turns an error response into a Go error, preferring the server's
// own message over the bare status code.
func apiError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	payload := struct {
		Error string `json:"error"`
	}{}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return errors.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, payload.Error)
	}

	return errors.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
}
