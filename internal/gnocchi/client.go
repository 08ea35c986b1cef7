package gnocchi

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

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/tracing"
)

const maxErrorBody = 64 << 10

// Client talks to the Gnocchi REST API using basic authentication.
type Client struct {
	baseURL       *url.URL
	username      string
	password      string
	archivePolicy string
	http          *http.Client
	logger        logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient builds a client for cfg.Endpoint. A user in the endpoint URL
// (http://user@host:8041) takes precedence over cfg.Username.
func NewClient(cfg config.GnocchiConfig, log logger.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid gnocchi endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unknown scheme in %s", cfg.Endpoint)
	}

	username, password := cfg.Username, cfg.Password
	if u.User != nil {
		username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			password = p
		}
		u.User = nil
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	c := &Client{
		baseURL:       u,
		username:      username,
		password:      password,
		archivePolicy: cfg.ArchivePolicy,
		http:          &http.Client{Timeout: timeout},
		logger:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the base URL without credentials.
func (c *Client) Endpoint() string {
	return c.baseURL.String()
}

type metricMeasures struct {
	ArchivePolicyName string          `json:"archive_policy_name,omitempty"`
	Measures          []senml.Measure `json:"measures"`
}

// SubmitMeasures posts batch for the resource sensorID through the batch
// endpoint. With createMetrics set, Gnocchi creates unknown metrics on the
// fly.
func (c *Client) SubmitMeasures(ctx context.Context, sensorID string, batch senml.Batch, createMetrics bool) error {
	metricsDoc := make(map[string]metricMeasures, len(batch))
	for name, measures := range batch {
		metricsDoc[name] = metricMeasures{
			ArchivePolicyName: c.archivePolicy,
			Measures:          measures,
		}
	}
	body := map[string]map[string]metricMeasures{sensorID: metricsDoc}

	query := url.Values{}
	if createMetrics {
		query.Set("create_metrics", "true")
	}

	return c.do(ctx, "submit_measures", http.MethodPost, constants.GnocchiBatchMeasuresPath, query, body)
}

// CreateResource creates a resource of the given type. An existing resource
// yields a CONFLICT error.
func (c *Client) CreateResource(ctx context.Context, resourceType, id string) error {
	path := constants.GnocchiResourcePath + url.PathEscape(resourceType)
	return c.do(ctx, "create_resource", http.MethodPost, path, nil, map[string]string{"id": id})
}

// CreateResourceType creates a resource type. It is idempotent.
func (c *Client) CreateResourceType(ctx context.Context, name string) error {
	err := c.do(ctx, "create_resource_type", http.MethodPost, constants.GnocchiResourceTypePath, nil, map[string]string{"name": name})
	if errors.IsConflict(err) {
		return nil
	}
	return err
}

// Ping checks that the API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload interface{}) error {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "gnocchi."+op)
	defer span.End()

	start := time.Now()
	status := "ok"
	defer func() {
		metrics.ObserveBackendRequest(op, status, time.Since(start))
	}()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			status = errors.ErrInternal.Code
			return errors.ErrInternal.WithCause(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		status = errors.ErrInternal.Code
		return errors.ErrInternal.WithCause(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		status = errors.ErrConnectionFailure.Code
		span.RecordError(err)
		return connectionError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= constants.HTTPStatusOKMin && resp.StatusCode < constants.HTTPStatusOKMax {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err = statusError(op, resp.StatusCode, respBody)
	status = errors.Kind(err)
	span.RecordError(err)

	c.logger.DebugwCtx(ctx, "gnocchi request failed",
		"operation", op,
		"status_code", resp.StatusCode,
		"reason", errors.Reason(err),
	)
	return err
}

var _ Backend = (*Client)(nil)
