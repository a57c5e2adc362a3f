package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/domain"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	backoffBase       = 250 * time.Millisecond
	backoffCap        = 5 * time.Second
)

// HTTPProvider posts JSON requests to a remote assistant endpoint.
// Timeouts, rate limits and 5xx responses retry with exponential backoff
// plus jitter; everything else fails immediately.
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int

	// sleep and jitter are seams for tests.
	sleep  func(time.Duration)
	jitter func(time.Duration) time.Duration
}

func NewHTTPProvider(baseURL, apiKey, model string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
	}
}

func (p *HTTPProvider) ParseTask(ctx context.Context, input string) (ParsedTask, error) {
	body := map[string]any{"model": p.Model, "input": input}
	var out ParsedTask
	if err := p.do(ctx, "v1/parse", body, &out); err != nil {
		return ParsedTask{}, err
	}
	if out.Title == "" {
		return ParsedTask{}, apperr.Ai(apperr.AiInvalidResponse, "parse response missing title")
	}
	return out, nil
}

func (p *HTTPProvider) GenerateRecommendations(ctx context.Context, tasks []domain.Task) ([]Recommendation, error) {
	body := map[string]any{"model": p.Model, "tasks": tasks}
	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := p.do(ctx, "v1/recommend", body, &out); err != nil {
		return nil, err
	}
	for _, r := range out.Recommendations {
		if r.TaskID == "" {
			return nil, apperr.Ai(apperr.AiInvalidResponse, "recommendation missing task id")
		}
	}
	return out.Recommendations, nil
}

func (p *HTTPProvider) PlanSchedule(ctx context.Context, tasks []domain.Task, constraints domain.Constraints) (ScheduleAdvice, error) {
	body := map[string]any{"model": p.Model, "tasks": tasks, "constraints": constraints}
	var out ScheduleAdvice
	if err := p.do(ctx, "v1/schedule", body, &out); err != nil {
		return ScheduleAdvice{}, err
	}
	if len(out.OrderedTaskIDs) == 0 {
		return ScheduleAdvice{}, apperr.Ai(apperr.AiInvalidResponse, "schedule response carries no ordering")
	}
	return out, nil
}

func (p *HTTPProvider) Ping(ctx context.Context) error {
	return p.do(ctx, "v1/ping", map[string]any{"model": p.Model}, nil)
}

func (p *HTTPProvider) do(ctx context.Context, endpoint string, body, out any) error {
	if p.APIKey == "" {
		return apperr.Ai(apperr.AiMissingAPIKey, "no API key configured")
	}
	if p.HTTPClient == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		p.HTTPClient = &http.Client{Timeout: timeout}
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, attempt); err != nil {
				return err
			}
		}
		err := p.once(ctx, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func (p *HTTPProvider) once(ctx context.Context, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return apperr.Serialization("encode request", err)
	}
	url := strings.TrimRight(p.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return apperr.Ai(apperr.AiInvalidRequest, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return apperr.Ai(apperr.AiHTTPTimeout, "request timed out")
		}
		return apperr.Ai(apperr.AiUnknown, err.Error())
	}
	defer resp.Body.Close()

	correlation := resp.Header.Get("X-Correlation-Id")
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.AiWithCorrelation(apperr.AiRateLimited, "rate limited", correlation)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.AiWithCorrelation(apperr.AiForbidden, "request rejected", correlation)
	case resp.StatusCode >= 500:
		return apperr.AiWithCorrelation(apperr.AiUnknown, resp.Status, correlation)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.AiWithCorrelation(apperr.AiInvalidRequest, strings.TrimSpace(resp.Status+" "+string(snippet)), correlation)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.AiWithCorrelation(apperr.AiInvalidResponse, "malformed response body", correlation)
	}
	return nil
}

// wait sleeps for the attempt's backoff slot unless ctx ends first.
func (p *HTTPProvider) wait(ctx context.Context, attempt int) error {
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	delay += p.jitterFor(delay)
	sleep := p.sleep
	if sleep != nil {
		sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperr.Ai(apperr.AiHTTPTimeout, "cancelled during backoff")
	case <-timer.C:
		return nil
	}
}

func (p *HTTPProvider) jitterFor(delay time.Duration) time.Duration {
	if p.jitter != nil {
		return p.jitter(delay)
	}
	return time.Duration(rand.Int63n(int64(delay)/2 + 1))
}

func retryable(err error) bool {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.AiCode {
	case apperr.AiHTTPTimeout, apperr.AiRateLimited, apperr.AiUnknown:
		return appErr.Kind == apperr.KindAi
	}
	return false
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
