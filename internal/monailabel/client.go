package monailabel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/roilabel/internal/infer"
)

const (
	// DefaultTimeout bounds a single request. Inference on large regions is slow.
	DefaultTimeout = 10 * time.Minute

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 256 << 20

	// maxErrorBody caps how much of an error body is kept in a StatusError.
	maxErrorBody = 512
)

// Client talks to one MONAI Label server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger

	proxyAddress string
	proxyAuth    *proxy.Auth
	headers      map[string]string
	timeout      time.Duration
}

var _ infer.ImageStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithProxy routes requests through a SOCKS5 proxy. user may be empty.
func WithProxy(address, user, password string) Option {
	return func(c *Client) {
		c.proxyAddress = address
		if user != "" {
			c.proxyAuth = &proxy.Auth{User: user, Password: password}
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client. Proxy settings are ignored, headers
// are still injected.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServerURL, serverURL)
	}

	c := &Client{
		baseURL: u,
		logger:  slog.New(slog.DiscardHandler),
		headers: make(map[string]string),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	var base http.RoundTripper
	if c.http == nil {
		transport, err := newTransport(c.proxyAddress, c.proxyAuth)
		if err != nil {
			return nil, err
		}
		base = transport
		c.http = &http.Client{Timeout: c.timeout}
	} else {
		base = c.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := *c.http
		c.http = &hc
	}
	c.http.Transport = &headerInjectingTransport{base: base, headers: c.headers}

	return c, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Info fetches the server's self description and model list.
func (c *Client) Info(ctx context.Context) (*infer.ServerInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/info/", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var info infer.ServerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode server info: %w", err)
	}
	return &info, nil
}

// ImageExists reports whether the datastore holds image.
func (c *Client) ImageExists(ctx context.Context, image string) (bool, error) {
	if image == "" {
		return false, ErrEmptyImage
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/datastore/image", url.Values{"image": {image}}, nil, "")
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("GET /datastore/image: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, statusError(resp)
	}
}

// SaveImage uploads the file at path to the datastore under image and
// returns the ID the server assigned.
func (c *Client) SaveImage(ctx context.Context, image, path string, params map[string]any) (string, error) {
	if image == "" {
		return "", ErrEmptyImage
	}

	form, contentType, err := buildForm(params, filePart{field: "file", path: path})
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPut, "/datastore/", url.Values{"image": {image}}, form, contentType)
	if err != nil {
		return "", err
	}

	var out struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Image == "" {
		return image, nil //nolint:nilerr // older servers return no body
	}
	return out.Image, nil
}

// SaveLabel uploads a label document for image. tag may be empty.
func (c *Client) SaveLabel(ctx context.Context, image, path, tag string, params map[string]any) error {
	if image == "" {
		return ErrEmptyImage
	}

	form, contentType, err := buildForm(params, filePart{field: "label", path: path})
	if err != nil {
		return err
	}
	q := url.Values{"image": {image}}
	if tag != "" {
		q.Set("tag", tag)
	}
	_, err = c.do(ctx, http.MethodPut, "/datastore/label", q, form, contentType)
	return err
}

// Infer runs req on the server and returns the raw ASAP document.
//
// image is the datastore ID; when uploadPath is set the file is sent with the
// request and image names the upload.
func (c *Client) Infer(ctx context.Context, image, uploadPath string, req *infer.Request) ([]byte, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	var parts []filePart
	if uploadPath != "" {
		parts = append(parts, filePart{field: "file", path: uploadPath})
	}
	form, contentType, err := buildRawForm(params, parts...)
	if err != nil {
		return nil, err
	}

	q := url.Values{"image": {image}, "output": {"asap"}}
	return c.do(ctx, http.MethodPost, "/infer/"+req.ModelName, q, form, contentType)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("server request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	return data, nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
	return &StatusError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

type filePart struct {
	field string
	path  string
}

func buildForm(params map[string]any, files ...filePart) (*bytes.Buffer, string, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode params: %w", err)
	}
	return buildRawForm(raw, files...)
}

func buildRawForm(params []byte, files ...filePart) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("params", string(params)); err != nil {
		return nil, "", err
	}
	for _, f := range files {
		if err := writeFile(w, f); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, f filePart) error {
	src, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.field, err)
	}
	defer src.Close()

	part, err := w.CreateFormFile(f.field, filepath.Base(f.path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to read %s: %w", f.field, err)
	}
	return nil
}
