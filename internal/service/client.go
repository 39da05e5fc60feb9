// Package service is the HTTP client for the effect processing service.
//
// Endpoints:
//
//	GET  /presets                    named parameter sets
//	POST /upload                     multipart "file" -> {session_id}
//	POST /process/{session_id}       {effect, pot1..pot4} -> {success}
//	GET  /play/{session_id}/{role}   original or processed audio
//	GET  /download/{session_id}      latest processed artifact
//	POST /cleanup/{session_id}       best-effort removal
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/sirupsen/logrus"
)

// Role tags the two audio resources of a session
type Role string

const (
	RoleOriginal  Role = "original"
	RoleProcessed Role = "processed"
)

// Preset is one entry of the /presets response.
// Pot fields are pointers so an incomplete entry can be told apart from zero.
type Preset struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Pot1        *float64 `json:"pot1"`
	Pot2        *float64 `json:"pot2"`
	Pot3        *float64 `json:"pot3"`
	Pot4        *float64 `json:"pot4"`
}

// APIError is a non-2xx response. Message is the service's "error" field, if any.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

type uploadResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Client talks to one processing service instance
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the service rooted at baseURL
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// endpoint joins the base URL with path segments
func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.base
	u.Path = path.Join(append([]string{"/", u.Path}, segments...)...)
	u.RawPath = ""
	u.RawQuery = ""
	return &u
}

// PlayURL addresses the streamable audio of a session.
// For the processed role a non-zero bust value is appended as ?t= so players
// refetch after each reprocess; the URL is otherwise stable.
func (c *Client) PlayURL(sessionID string, role Role, bust int64) string {
	u := c.endpoint("play", sessionID, string(role))
	if role == RoleProcessed && bust != 0 {
		u.RawQuery = url.Values{"t": {strconv.FormatInt(bust, 10)}}.Encode()
	}
	return u.String()
}

// DownloadURL addresses the latest processed artifact of a session
func (c *Client) DownloadURL(sessionID string) string {
	return c.endpoint("download", sessionID).String()
}

// Presets fetches the named parameter sets
func (c *Client) Presets(ctx context.Context) (map[string]Preset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("presets").String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError("presets", resp)
	}

	out := make(map[string]Preset)
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("presets: decode: %w", err)
	}
	return out, nil
}

// Upload sends the source file and returns the session identifier minted by the service
func (c *Client) Upload(ctx context.Context, filename string, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload").String(), pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logrus.WithFields(logrus.Fields{
		"function": "Upload",
		"file":     filename,
	}).Debug("Uploading source file")

	resp, err := c.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError("upload", resp)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload: decode: %w", err)
	}
	if out.SessionID == "" {
		return "", &APIError{Op: "upload", Status: resp.StatusCode, Message: out.Error}
	}
	return out.SessionID, nil
}

// Process asks the service to run the effect over the session's source file
func (c *Client) Process(ctx context.Context, sessionID string, params pots.Request) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("process", sessionID).String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError("process", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Cleanup asks the service to drop the session's files
func (c *Client) Cleanup(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("cleanup", sessionID).String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError("cleanup", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download copies the latest processed artifact into w
func (c *Client) Download(ctx context.Context, sessionID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(sessionID), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, apiError("download", resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	return n, nil
}

// apiError extracts the "error" field of a failed response when the body is JSON
func apiError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body statusResponse
	msg := ""
	if err := json.Unmarshal(data, &body); err == nil {
		msg = strings.TrimSpace(body.Error)
	}
	return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
}

// ErrorMessage returns the service-provided error text carried by err, if any
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
