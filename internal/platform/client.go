package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rflorenc/pan-deduper/internal/models"
)

// Client is the HTTP client shared by the REST and keygen calls.
type Client struct {
	baseURL    string
	prefix     string
	username   string
	password   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client from a Connection.
func NewClient(conn *models.Connection) *Client {
	transport := &http.Transport{}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL:  conn.BaseURL(),
		prefix:   conn.RESTPrefix(),
		username: conn.Username,
		password: conn.Password,
		apiKey:   conn.APIKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

// keygenResponse is the XML API reply to type=keygen.
type keygenResponse struct {
	Status string `xml:"status,attr"`
	Key    string `xml:"result>key"`
	Msg    string `xml:"result>msg"`
}

// Login exchanges the username and password for an API key, unless one was
// configured.
func (c *Client) Login(ctx context.Context) error {
	if c.apiKey != "" {
		return nil
	}
	params := url.Values{"type": {"keygen"}, "user": {c.username}, "password": {c.password}}
	body, err := c.do(ctx, http.MethodGet, "/api/", params, nil)
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	key, err := ParseKeygenResponse(body)
	if err != nil {
		return err
	}
	c.apiKey = key
	return nil
}

// ParseKeygenResponse extracts the API key from a keygen reply.
func ParseKeygenResponse(body []byte) (string, error) {
	var resp keygenResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing keygen response: %w", err)
	}
	if resp.Status != "success" || resp.Key == "" {
		msg := resp.Msg
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		return "", fmt.Errorf("keygen failed: %s", msg)
	}
	return resp.Key, nil
}

// Op runs an XML API operational command and returns the raw reply.
func (c *Client) Op(ctx context.Context, cmd string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/", url.Values{"type": {"op"}, "cmd": {cmd}}, nil)
}

// Get performs an authenticated GET against a REST resource path such as
// "Objects/Addresses".
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.prefix+path, params, nil)
}

// GetJSON performs an authenticated GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

// Post performs an authenticated POST with a JSON body. The body and status
// code are returned even when the request was rejected.
func (c *Client) Post(ctx context.Context, path string, params url.Values, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling body: %w", err)
	}
	return c.send(ctx, http.MethodPost, c.prefix+path, params, bytes.NewReader(data))
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	return c.send(ctx, http.MethodDelete, c.prefix+path, params, nil)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader) ([]byte, error) {
	data, status, err := c.send(ctx, method, path, params, body)
	if err != nil {
		return data, err
	}
	if status < 200 || status >= 300 {
		return data, fmt.Errorf("%s %s: HTTP %d: %s", method, path, status, truncate(string(data), 200))
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, body io.Reader) ([]byte, int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-PAN-KEY", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
