// Package api uploads exported flight logs to a recording server.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/multicopter/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/flights/add"
)

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.Status, e.Body)
}

// IsStatus reports whether err is a StatusError carrying the given code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Client talks to the recording server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Healthcheck returns nil when the server answers its health endpoint.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("building healthcheck request: %w", err)
	}
	return c.do(req, "healthcheck")
}

// Upload streams the flight log at path to the server together with the run
// metadata as multipart form fields.
func (c *Client) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening flight log: %w", err)
	}
	defer file.Close()

	name := filepath.Base(path)
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	writeErr := make(chan error, 1)
	go func() {
		err := writeForm(form, name, c.apiKey, meta, file)
		if cerr := form.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
		writeErr <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		<-writeErr
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	err = c.do(req, "upload")
	// unblock the writer if the server stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	if werr := <-writeErr; werr != nil && !errors.Is(werr, io.ErrClosedPipe) && err == nil {
		return fmt.Errorf("writing upload form: %w", werr)
	}
	return err
}

func writeForm(form *multipart.Writer, name, secret string, meta core.UploadMetadata, file io.Reader) error {
	fields := [][2]string{
		{"secret", secret},
		{"filename", name},
		{"runName", meta.RunName},
		{"runDuration", strconv.FormatFloat(meta.RunDuration, 'f', 3, 64)},
		{"vehicleCount", strconv.Itoa(meta.VehicleCount)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
