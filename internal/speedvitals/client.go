package speedvitals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrz1836/go-speedvitals/internal/ci"
	prerrors "github.com/mrz1836/go-speedvitals/internal/errors"
)

// DefaultBaseURL is the production API endpoint
const DefaultBaseURL = "https://api.speedvitals.com/v1"

// maxErrorBody caps how much of an unexpected response body ends up in errors
const maxErrorBody = 512

// Service is the remote test service consumed by the analyzer
type Service interface {
	// CreateTest submits a new test job
	CreateTest(ctx context.Context, in CreateTestInput) (*Job, error)

	// GetTest fetches the current snapshot of a job
	GetTest(ctx context.Context, id string) (*Job, error)
}

// CreateTestInput is what a job creation call needs
type CreateTestInput struct {
	Request TestRequest
	CI      ci.Metadata
}

// HTTPClient interface for dependency injection
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Version    string        // used in the User-Agent
	RunID      string        // sent as X-Request-ID when set
	Timeout    time.Duration // ignored when HTTPClient is provided
	HTTPClient HTTPClient
	Logger     logrus.FieldLogger
}

// Client talks to the SpeedVitals REST API
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	runID     string
	http      HTTPClient
	log       logrus.FieldLogger
}

// NewClient creates a new API client
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    opts.APIKey,
		userAgent: fmt.Sprintf("go-speedvitals/%s (%s/%s)", version, runtime.GOOS, runtime.GOARCH),
		runID:     opts.RunID,
		http:      httpClient,
		log:       logger,
	}
}

// createTestBody is the job creation payload
type createTestBody struct {
	CIEnv    ci.Metadata    `json:"ciEnv"`
	Config   map[string]any `json:"config"`
	URL      string         `json:"url"`
	Device   string         `json:"device"`
	Location string         `json:"location"`
}

// CreateTest submits a new Lighthouse test
func (c *Client) CreateTest(ctx context.Context, in CreateTestInput) (*Job, error) {
	body, err := json.Marshal(createTestBody{
		CIEnv:    in.CI,
		Config:   map[string]any{},
		URL:      in.Request.URL,
		Device:   in.Request.Device,
		Location: in.Request.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	status, data, err := c.do(ctx, http.MethodPost, "/lighthouse-tests", body)
	if err != nil {
		return nil, err
	}
	return decodeJob(status, data)
}

// GetTest fetches a Lighthouse test by id
func (c *Client) GetTest(ctx context.Context, id string) (*Job, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/lighthouse-tests/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeJob(status, data)
}

// do sends one request and returns the status code and raw body
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-API-KEY", c.apiKey)
	if c.runID != "" {
		req.Header.Set("X-Request-ID", c.runID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("speedvitals api call")

	return resp.StatusCode, data, nil
}

// decodeJob interprets a response body as either a job, a {data: job}
// wrapper, or an error envelope
func decodeJob(status int, data []byte) (*Job, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if status >= http.StatusBadRequest {
			return nil, &prerrors.RemoteError{Code: strconv.Itoa(status), Message: truncate(string(data))}
		}
		return nil, fmt.Errorf("%w: %v", prerrors.ErrUnexpectedResponse, err)
	}

	if _, ok := fields["code"]; ok {
		var envelope ErrorEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			// code may be numeric
			var loose struct {
				Code    json.Number `json:"code"`
				Message string      `json:"message"`
			}
			if lerr := json.Unmarshal(data, &loose); lerr != nil {
				return nil, fmt.Errorf("%w: %v", prerrors.ErrUnexpectedResponse, err)
			}
			envelope = ErrorEnvelope{Code: loose.Code.String(), Message: loose.Message}
		}
		return nil, &prerrors.RemoteError{Code: envelope.Code, Message: envelope.Message}
	}

	if status >= http.StatusBadRequest {
		return nil, &prerrors.RemoteError{Code: strconv.Itoa(status), Message: truncate(string(data))}
	}

	raw := data
	if inner, ok := fields["data"]; ok {
		raw = inner
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", prerrors.ErrUnexpectedResponse, err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("%w: job id missing", prerrors.ErrUnexpectedResponse)
	}
	return &job, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
