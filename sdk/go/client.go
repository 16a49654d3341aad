package syclopsuisdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Syclops config UI HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Fields is a set of form fields, as the UI posts them.
type Fields map[string]any

// SavedConfig is the result of SaveConfig.
type SavedConfig struct {
	Success     bool   `json:"success"`
	FilePath    string `json:"file_path"`
	YAMLContent string `json:"yaml_content"`
	Error       string `json:"error,omitempty"`
}

// Asset is a catalog entry.
type Asset struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Library   string   `json:"library"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	Thumbnail []string `json:"thumbnail"`
	Height    float64  `json:"height"`
}

// Assets wraps a catalog listing. Error is set when the catalog could not be read.
type Assets struct {
	Assets []Asset `json:"assets"`
	Error  string  `json:"error,omitempty"`
}

// Outcome reports a generation request.
type Outcome struct {
	Success    bool   `json:"success"`
	JobID      string `json:"job_id,omitempty"`
	Message    string `json:"message,omitempty"`
	ProcessID  int    `json:"process_id,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Command    string `json:"command,omitempty"`
	DebugMode  string `json:"debug_mode,omitempty"`
	Note       string `json:"note,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Job is a dispatched job.
type Job struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ProcessID  int    `json:"process_id,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
	Command    string `json:"command,omitempty"`
	DebugMode  string `json:"debug_mode"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	JobID   string         `json:"job_id"`
	Payload map[string]any `json:"payload"`
}

// JobDetail is a job with its events.
type JobDetail struct {
	Job    Job     `json:"job"`
	Events []Event `json:"events"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// SaveConfig compiles fields and saves the job description server side.
func (c *Client) SaveConfig(ctx context.Context, fields Fields) (SavedConfig, error) {
	var resp SavedConfig
	err := c.do(ctx, http.MethodPost, "save_config", fields, &resp)
	return resp, err
}

// Preview compiles fields and returns the YAML job description.
func (c *Client) Preview(ctx context.Context, fields Fields) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodPost, "preview", fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Assets lists catalog assets of kind; an empty kind lists models.
func (c *Client) Assets(ctx context.Context, kind string) (Assets, error) {
	endpoint := "assets"
	if kind != "" {
		endpoint = fmt.Sprintf("%s?kind=%s", endpoint, url.QueryEscape(kind))
	}
	var resp Assets
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Generate compiles fields and starts the pipeline. A failed start is
// reported through Outcome.Success, not the error.
func (c *Client) Generate(ctx context.Context, fields Fields) (Outcome, error) {
	var resp Outcome
	err := c.do(ctx, http.MethodPost, "generate_data", fields, &resp)
	return resp, err
}

// Jobs returns recent jobs, newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]Job, error) {
	endpoint := "jobs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Job `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Job fetches one job and its events.
func (c *Client) Job(ctx context.Context, id string) (JobDetail, error) {
	var resp JobDetail
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
