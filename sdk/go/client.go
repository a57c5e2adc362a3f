package cognicalsdk

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

// Client is a minimal Cognical HTTP API client.
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

// Task represents the API task model (partial).
type Task struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status"`
	Priority         string   `json:"priority"`
	PlannedStartAt   *string  `json:"plannedStartAt,omitempty"`
	DueAt            *string  `json:"dueAt,omitempty"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Dependency represents an ordering edge between two tasks.
type Dependency struct {
	ID             string `json:"id"`
	PredecessorID  string `json:"predecessorId"`
	SuccessorID    string `json:"successorId"`
	DependencyType string `json:"dependencyType"`
}

// ValidationResult is the dry-run answer for a prospective edge.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	WouldCreateCycle bool     `json:"wouldCreateCycle"`
	CyclePath        []string `json:"cyclePath,omitempty"`
}

// TimeBlock is one scheduled stretch of work inside an option.
type TimeBlock struct {
	ID          string `json:"id"`
	OptionID    string `json:"optionId"`
	TaskID      string `json:"taskId"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	Flexibility string `json:"flexibility"`
	Status      string `json:"status"`
}

// Conflict annotates a violation the optimizer could not avoid.
type Conflict struct {
	Kind        string   `json:"kind"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	BlockIDs    []string `json:"blockIds,omitempty"`
	EventID     string   `json:"eventId,omitempty"`
}

// PlanOption is one ranked schedule candidate.
type PlanOption struct {
	ID        string      `json:"id"`
	Rank      int         `json:"rank"`
	Score     float64     `json:"score"`
	Label     string      `json:"label,omitempty"`
	Summary   string      `json:"summary,omitempty"`
	Blocks    []TimeBlock `json:"blocks"`
	Conflicts []Conflict  `json:"conflicts,omitempty"`
}

// PlanSession is a planning session with its options and conflicts.
type PlanSession struct {
	Session struct {
		ID               string  `json:"id"`
		Status           string  `json:"status"`
		SelectedOptionID *string `json:"selectedOptionId,omitempty"`
	} `json:"session"`
	Options   []PlanOption `json:"options"`
	Conflicts []Conflict   `json:"conflicts,omitempty"`
	Source    string       `json:"source,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	Payload    string `json:"payloadJson,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the
// server's error envelope when it sends one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task. Zero-value fields are left to server defaults.
func (c *Client) CreateTask(ctx context.Context, title string, fields map[string]any) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range fields {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns tasks, optionally filtered by status, priority, or tag.
func (c *Client) ListTasks(ctx context.Context, filters map[string]string) ([]Task, error) {
	endpoint := "tasks"
	if q := encodeQuery(filters); q != "" {
		endpoint += "?" + q
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// UpdateTask patches task fields. Pass json.RawMessage(`null`) in patch
// to clear an optional field.
func (c *Client) UpdateTask(ctx context.Context, id string, patch map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// DeleteTask removes a task and its dependency edges.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// ReadyTasks returns tasks whose predecessors are all done.
func (c *Client) ReadyTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "tasks/ready", nil, &resp)
	return resp.Items, err
}

// AddDependency creates an ordering edge.
func (c *Client) AddDependency(ctx context.Context, predecessorID, successorID, depType string) (Dependency, error) {
	body := map[string]any{
		"predecessorId": predecessorID,
		"successorId":   successorID,
	}
	if depType != "" {
		body["dependencyType"] = depType
	}
	var resp Dependency
	err := c.do(ctx, http.MethodPost, "dependencies", body, &resp)
	return resp, err
}

// RemoveDependency deletes an edge by id.
func (c *Client) RemoveDependency(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "dependencies/"+url.PathEscape(id), nil, nil)
}

// ValidateDependency dry-runs a prospective edge without creating it.
func (c *Client) ValidateDependency(ctx context.Context, predecessorID, successorID string) (ValidationResult, error) {
	body := map[string]any{
		"predecessorId": predecessorID,
		"successorId":   successorID,
	}
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "dependencies/validate", body, &resp)
	return resp, err
}

// GeneratePlan asks the optimizer for ranked schedule options. constraints
// may be nil; seed of 0 means let the server pick.
func (c *Client) GeneratePlan(ctx context.Context, taskIDs []string, constraints map[string]any, seed int64) (PlanSession, error) {
	body := map[string]any{"taskIds": taskIDs}
	if constraints != nil {
		body["constraints"] = constraints
	}
	if seed != 0 {
		body["seed"] = seed
	}
	var resp PlanSession
	err := c.do(ctx, http.MethodPost, "planning/sessions", body, &resp)
	return resp, err
}

// GetPlan fetches a planning session.
func (c *Client) GetPlan(ctx context.Context, sessionID string) (PlanSession, error) {
	var resp PlanSession
	err := c.do(ctx, http.MethodGet, "planning/sessions/"+url.PathEscape(sessionID), nil, &resp)
	return resp, err
}

// ApplyPlan commits one option of a draft session.
func (c *Client) ApplyPlan(ctx context.Context, sessionID, optionID string) (PlanSession, error) {
	body := map[string]any{"optionId": optionID}
	var resp PlanSession
	endpoint := "planning/sessions/" + url.PathEscape(sessionID) + "/apply"
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DiscardPlan abandons a draft session.
func (c *Client) DiscardPlan(ctx context.Context, sessionID string) (PlanSession, error) {
	var resp PlanSession
	endpoint := "planning/sessions/" + url.PathEscape(sessionID) + "/discard"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func encodeQuery(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(b, &envelope) == nil && envelope.Code != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
