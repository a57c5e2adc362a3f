// Package server exposes the planning core over HTTP. Errors leave as the
// {code, message, details} envelope regardless of which layer raised them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"cognical/internal/ai"
	"cognical/internal/apperr"
	"cognical/internal/app"
	"cognical/internal/cache"
	"cognical/internal/dependency"
	"cognical/internal/domain"
	"cognical/internal/planning"
	"cognical/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
}

// apiError models the required error envelope.
type apiError struct {
	status  int
	Code    string         `json:"code" example:"VALIDATION_ERROR"`
	Message string         `json:"message" example:"title must not be empty"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Code: code, Message: message, Details: details}
}

// New returns an HTTP handler exposing the Cognical API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema validation failures are caller errors.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Cognical API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	a := cfg.App
	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, a)
	registerDependencies(group, a)
	registerPlanning(group, a)
	registerPreferences(group, a)
	registerAssistant(group, a)
	registerCacheAdmin(group, a)
	registerEvents(group, a)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	code := apperr.Code(err)
	var appErr *apperr.Error
	details := map[string]any(nil)
	if errors.As(err, &appErr) {
		details = appErr.Details
		if appErr.CorrelationID != "" {
			if details == nil {
				details = map[string]any{}
			}
			details["correlationId"] = appErr.CorrelationID
		}
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return newAPIError(http.StatusBadRequest, code, err.Error(), details)
	case apperr.KindNotFound:
		return newAPIError(http.StatusNotFound, code, err.Error(), details)
	case apperr.KindConflict:
		return newAPIError(http.StatusConflict, code, err.Error(), details)
	case apperr.KindMemoryUnavailable:
		return newAPIError(http.StatusServiceUnavailable, code, err.Error(), details)
	case apperr.KindAi:
		return newAPIError(aiStatus(code), code, err.Error(), details)
	default:
		return newAPIError(http.StatusInternalServerError, "UNKNOWN", "internal error",
			map[string]any{"error": err.Error()})
	}
}

func aiStatus(code string) int {
	switch code {
	case apperr.AiMissingAPIKey:
		return http.StatusServiceUnavailable
	case apperr.AiForbidden:
		return http.StatusForbidden
	case apperr.AiHTTPTimeout:
		return http.StatusGatewayTimeout
	case apperr.AiRateLimited:
		return http.StatusTooManyRequests
	case apperr.AiInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type taskBody struct {
	Body domain.Task `json:"body"`
}

type taskListBody struct {
	Body struct {
		Items []domain.Task `json:"items"`
	} `json:"body"`
}

func registerTasks(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		created, err := a.Tasks.Create(ctx, input.Body.toInput())
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: created}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Tag      string `query:"tag"`
	}) (*taskListBody, error) {
		items, err := a.Tasks.List(ctx, repo.TaskFilters{
			Status:   input.Status,
			Priority: input.Priority,
			Tag:      input.Tag,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &taskListBody{}
		out.Body.Items = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ready-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/ready",
		Summary:     "Tasks whose predecessors are all done",
	}, func(ctx context.Context, _ *struct{}) (*taskListBody, error) {
		items, err := a.Deps.ReadyTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &taskListBody{}
		out.Body.Items = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*taskBody, error) {
		t, err := a.Tasks.Get(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Patch task fields; explicit null clears",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID  string `path:"task_id"`
		RawBody []byte `contentType:"application/json"`
	}) (*taskBody, error) {
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "body required", nil)
		}
		patch, err := patchFromRaw(input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := a.Tasks.Update(ctx, input.TaskID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		if err := a.Tasks.Delete(ctx, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "critical-path",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/critical-path",
		Summary:     "Longest dependency chain ending at the task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body struct {
			Path []string `json:"path"`
		} `json:"body"`
	}, error) {
		p, err := a.Deps.CriticalPath(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Path []string `json:"path"`
			} `json:"body"`
		}{}
		out.Body.Path = p
		return out, nil
	})
}

func registerDependencies(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/dependencies",
		Summary:       "Add dependency edge",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body DependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		d, err := a.Deps.Add(ctx, input.Body.PredecessorID, input.Body.SuccessorID, input.Body.DependencyType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-dependency",
		Method:        http.MethodDelete,
		Path:          "/dependencies/{dependency_id}",
		Summary:       "Remove dependency edge",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DependencyID string `path:"dependency_id"`
	}) (*struct{}, error) {
		if err := a.Deps.Remove(ctx, input.DependencyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-dependency",
		Method:      http.MethodPost,
		Path:        "/dependencies/validate",
		Summary:     "Dry-run cycle check for a prospective edge",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body DependencyRequest `json:"body"`
	}) (*struct {
		Body dependency.ValidationResult `json:"body"`
	}, error) {
		res, err := a.Deps.Validate(ctx, input.Body.PredecessorID, input.Body.SuccessorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dependency.ValidationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dependency-graph",
		Method:      http.MethodGet,
		Path:        "/dependencies/graph",
		Summary:     "Full dependency graph with topological order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body dependency.Graph `json:"body"`
	}, error) {
		g, err := a.Deps.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dependency.Graph `json:"body"`
		}{Body: *g}, nil
	})
}

type sessionBody struct {
	Body planning.SessionView `json:"body"`
}

func registerPlanning(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-plan",
		Method:        http.MethodPost,
		Path:          "/planning/sessions",
		Summary:       "Generate planning options",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body GenerateRequest `json:"body"`
	}) (*sessionBody, error) {
		view, err := a.Planning.Generate(ctx, planning.GenerateInput{
			TaskIDs:      input.Body.TaskIDs,
			Constraints:  input.Body.Constraints,
			PreferenceID: input.Body.PreferenceID,
			Seed:         input.Body.Seed,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionBody{Body: *view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-planning-session",
		Method:      http.MethodGet,
		Path:        "/planning/sessions/{session_id}",
		Summary:     "Session with options, blocks and derived conflicts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*sessionBody, error) {
		view, err := a.Planning.View(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionBody{Body: *view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-planning-option",
		Method:      http.MethodPost,
		Path:        "/planning/sessions/{session_id}/apply",
		Summary:     "Apply one option onto the tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string       `path:"session_id"`
		Body      ApplyRequest `json:"body"`
	}) (*sessionBody, error) {
		view, err := a.Planning.Apply(ctx, planning.ApplyInput{
			SessionID: input.SessionID,
			OptionID:  input.Body.OptionID,
			Overrides: toOverrides(input.Body.Overrides),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionBody{Body: *view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-planning-conflicts",
		Method:      http.MethodPost,
		Path:        "/planning/sessions/{session_id}/resolve",
		Summary:     "Adjust blocks and re-derive conflicts",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string         `path:"session_id"`
		Body      ResolveRequest `json:"body"`
	}) (*sessionBody, error) {
		view, err := a.Planning.Resolve(ctx, planning.ResolveInput{
			SessionID:   input.SessionID,
			OptionID:    input.Body.OptionID,
			Adjustments: toOverrides(input.Body.Adjustments),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionBody{Body: *view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "discard-planning-session",
		Method:      http.MethodPost,
		Path:        "/planning/sessions/{session_id}/discard",
		Summary:     "Discard a draft session",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*sessionBody, error) {
		view, err := a.Planning.Discard(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionBody{Body: *view}, nil
	})
}

type snapshotBody struct {
	Body domain.PreferenceSnapshot `json:"body"`
}

func registerPreferences(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/preferences/{preference_id}",
		Summary:     "Stored schedule preferences",
	}, func(ctx context.Context, input *struct {
		PreferenceID string `path:"preference_id"`
	}) (*snapshotBody, error) {
		snap, err := a.Planning.Preferences(ctx, input.PreferenceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &snapshotBody{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-preferences",
		Method:      http.MethodPut,
		Path:        "/preferences/{preference_id}",
		Summary:     "Overwrite schedule preferences",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PreferenceID string                    `path:"preference_id"`
		Body         domain.PreferenceSnapshot `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := a.Planning.UpdatePreferences(ctx, input.PreferenceID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &snapshotBody{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ingest-feedback",
		Method:      http.MethodPost,
		Path:        "/preferences/{preference_id}/feedback",
		Summary:     "Feed execution outcomes to the learner",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PreferenceID string          `path:"preference_id"`
		Body         FeedbackRequest `json:"body"`
	}) (*snapshotBody, error) {
		if len(input.Body.Events) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "events must not be empty", nil)
		}
		snap, err := a.Planning.RecordFeedback(ctx, input.PreferenceID, input.Body.Events)
		if err != nil {
			return nil, handleError(err)
		}
		return &snapshotBody{Body: snap}, nil
	})
}

func registerAssistant(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "parse-task",
		Method:      http.MethodPost,
		Path:        "/ai/parse",
		Summary:     "Extract a task draft from free text",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ParseRequest `json:"body"`
	}) (*struct {
		Body struct {
			Parsed ai.ParsedTask `json:"parsed"`
			Source string        `json:"source"`
		} `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Input) == "" {
			return nil, newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "input must not be empty", nil)
		}
		out := &struct {
			Body struct {
				Parsed ai.ParsedTask `json:"parsed"`
				Source string        `json:"source"`
			} `json:"body"`
		}{}
		hash := cache.SemanticHash(input.Body.Input, nil)
		if entry, err := a.Cache.Get(ctx, cache.OpParse, hash); err == nil && entry != nil {
			if json.Unmarshal([]byte(entry.ResponseJSON), &out.Body.Parsed) == nil {
				out.Body.Source = "cache"
				return out, nil
			}
		}
		parsed, err := a.Provider(ctx).ParseTask(ctx, input.Body.Input)
		if err != nil {
			return nil, handleError(err)
		}
		if raw, err := json.Marshal(parsed); err == nil {
			a.Cache.Put(ctx, cache.OpParse, hash, input.Body.Input, string(raw), cache.PutOptions{})
		}
		out.Body.Parsed = parsed
		out.Body.Source = "provider"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommend-tasks",
		Method:      http.MethodPost,
		Path:        "/ai/recommend",
		Summary:     "Rank tasks worth doing next",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecommendRequest `json:"body"`
	}) (*struct {
		Body struct {
			Recommendations []ai.Recommendation `json:"recommendations"`
			Source          string              `json:"source"`
		} `json:"body"`
	}, error) {
		var tasks []domain.Task
		var err error
		if len(input.Body.TaskIDs) > 0 {
			tasks, err = a.Tasks.GetMany(ctx, input.Body.TaskIDs)
		} else {
			tasks, err = a.Tasks.List(ctx, repo.TaskFilters{})
		}
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Recommendations []ai.Recommendation `json:"recommendations"`
				Source          string              `json:"source"`
			} `json:"body"`
		}{}
		var keys []string
		for _, t := range tasks {
			keys = append(keys, t.ID+"@"+t.UpdatedAt)
		}
		hash := cache.SemanticHash(strings.Join(keys, ","), nil)
		if entry, err := a.Cache.Get(ctx, cache.OpRecommend, hash); err == nil && entry != nil {
			if json.Unmarshal([]byte(entry.ResponseJSON), &out.Body.Recommendations) == nil {
				out.Body.Source = "cache"
				return out, nil
			}
		}
		recs, err := a.Provider(ctx).GenerateRecommendations(ctx, tasks)
		if err != nil {
			return nil, handleError(err)
		}
		if raw, err := json.Marshal(recs); err == nil {
			a.Cache.Put(ctx, cache.OpRecommend, hash, strings.Join(keys, ","), string(raw), cache.PutOptions{})
		}
		out.Body.Recommendations = recs
		out.Body.Source = "provider"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ping-provider",
		Method:      http.MethodGet,
		Path:        "/ai/ping",
		Summary:     "Probe the configured provider",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := a.Provider(ctx).Ping(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCacheAdmin(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "purge-cache",
		Method:      http.MethodPost,
		Path:        "/cache/purge",
		Summary:     "Remove expired cache entries",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		n, err := a.Cache.PurgeExpired(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"removed": n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cache-stats",
		Method:      http.MethodGet,
		Path:        "/cache/stats",
		Summary:     "Cache entry count",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		n, err := a.Repo.CountCacheEntries(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"entries": n}}, nil
	})
}

func registerEvents(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent planning events, newest first",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entityKind"`
		EntityID   string `query:"entityId"`
	}) (*struct {
		Body struct {
			Items []domain.Event `json:"items"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := a.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Event `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Cognical API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
