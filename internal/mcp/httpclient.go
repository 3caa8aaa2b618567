package mcp

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

	"github.com/claude/planforge/internal/models"
)

// HTTPClient implements DataSource by calling the PlanForge REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// programs live on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	return c.do(req, path)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

func (c *HTTPClient) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func (c *HTTPClient) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	body, err := c.get(ctx, "/api/v1/exercises", nil)
	if err != nil {
		return nil, err
	}

	var exercises []models.Exercise
	if err := json.Unmarshal(body, &exercises); err != nil {
		return nil, fmt.Errorf("httpclient: decode exercises: %w", err)
	}
	return exercises, nil
}

func (c *HTTPClient) ListMuscleGroups(ctx context.Context) ([]models.MuscleGroup, error) {
	body, err := c.get(ctx, "/api/v1/muscle-groups", nil)
	if err != nil {
		return nil, err
	}

	var groups []models.MuscleGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("httpclient: decode muscle groups: %w", err)
	}
	return groups, nil
}

// ActiveProgram fetches the caller's active program. The remote server
// resolves the user from the transport identity, so the user ID is unused.
func (c *HTTPClient) ActiveProgram(ctx context.Context, _ int) (models.ActiveProgramSnapshot, error) {
	body, err := c.get(ctx, "/api/v1/programs/active", nil)
	if err != nil {
		return models.ActiveProgramSnapshot{}, err
	}

	var snap models.ActiveProgramSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return models.ActiveProgramSnapshot{}, fmt.Errorf("httpclient: decode active program: %w", err)
	}
	return snap, nil
}

func (c *HTTPClient) PlannedSessions(ctx context.Context, _ int, start, end time.Time) ([]models.PlannedSession, error) {
	params := url.Values{}
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))

	body, err := c.get(ctx, "/api/v1/schedule", params)
	if err != nil {
		return nil, err
	}

	var sessions []models.PlannedSession
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("httpclient: decode schedule: %w", err)
	}
	return sessions, nil
}

func (c *HTTPClient) PreviewProgram(ctx context.Context, _ int, req models.GenerationRequest) (*models.Preview, error) {
	body, err := c.post(ctx, "/api/v1/programs/preview", req)
	if err != nil {
		return nil, err
	}

	var preview models.Preview
	if err := json.Unmarshal(body, &preview); err != nil {
		return nil, fmt.Errorf("httpclient: decode preview: %w", err)
	}
	return &preview, nil
}

func (c *HTTPClient) AdaptNextWeek(ctx context.Context, _ int) (*AdaptOutcome, error) {
	body, err := c.post(ctx, "/api/v1/programs/adapt", struct{}{})
	if err != nil {
		return nil, err
	}

	var outcome AdaptOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return nil, fmt.Errorf("httpclient: decode adapt outcome: %w", err)
	}
	return &outcome, nil
}
