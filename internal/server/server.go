package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"claimbot/internal/domain"
	"claimbot/internal/engine"
	"claimbot/internal/repo"
	"claimbot/internal/resolver"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"conversation not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Claimbot API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Claimbot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerWebhooks(group, cfg.Engine)
	registerConversations(group, cfg.Engine)
	registerTenants(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, resolver.ErrNoOwner) {
		return newAPIError(http.StatusUnprocessableEntity, "no_owner", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique") || strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
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
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Claimbot API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerWebhooks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "webhook-task-assigned",
		Method:      http.MethodPost,
		Path:        "/webhooks/task-assigned",
		Summary:     "Tracker assigned a task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body taskAssignedRequest `json:"body"`
	}) (*struct {
		Body conversationResponse `json:"body"`
	}, error) {
		if input.Body.WorkspaceID == "" || input.Body.TaskID == "" || input.Body.TaskName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "workspace_id, task_id and task_name required", nil)
		}
		tenant, err := e.Repo.TenantByTrackerWorkspace(ctx, input.Body.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireTenant(ctx, tenant.ID); authErr != nil {
			return nil, authErr
		}
		var deadline *time.Time
		if input.Body.Deadline != nil {
			parsed, err := time.Parse(time.RFC3339, *input.Body.Deadline)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid deadline", map[string]any{"deadline": *input.Body.Deadline})
			}
			deadline = &parsed
		}
		c, err := e.OnTaskAssigned(ctx, tenant.ID, input.Body.TaskID, input.Body.TaskName, deadline)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body conversationResponse `json:"body"`
		}{Body: toConversationResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "webhook-reply",
		Method:      http.MethodPost,
		Path:        "/webhooks/reply",
		Summary:     "Chat reply received",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body replyReceivedRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.TeamID == "" || input.Body.TaskID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "team_id and task_id required", nil)
		}
		tenant, err := e.Repo.TenantByChatTeam(ctx, input.Body.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireTenant(ctx, tenant.ID); authErr != nil {
			return nil, authErr
		}
		if err := e.OnReplyReceived(ctx, tenant.ID, input.Body.TaskID, input.Body.Text); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "accepted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "webhook-task-closed",
		Method:      http.MethodPost,
		Path:        "/webhooks/task-closed",
		Summary:     "Tracker closed a task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body taskClosedRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.WorkspaceID == "" || input.Body.TaskID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "workspace_id and task_id required", nil)
		}
		tenant, err := e.Repo.TenantByTrackerWorkspace(ctx, input.Body.WorkspaceID)
		if err != nil {
			return nil, handleError(err)
		}
		if authErr := requireTenant(ctx, tenant.ID); authErr != nil {
			return nil, authErr
		}
		if err := e.OnTaskClosed(ctx, tenant.ID, input.Body.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "closed"}}, nil
	})
}

type paginatedConversations struct {
	Items      []conversationResponse `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/conversations",
		Summary:     "List conversations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		State    string `query:"state" enum:"awaiting_response,claimed,unassignable,closed"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedConversations `json:"body"`
	}, error) {
		if authErr := requireTenant(ctx, input.TenantID); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		filters := repo.ConversationFilters{
			TenantID: input.TenantID,
			State:    input.State,
			Limit:    limit + 1,
		}
		if input.Cursor != "" {
			createdAt, id, ok := strings.Cut(input.Cursor, "|")
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			filters.CursorCreatedAt = createdAt
			filters.CursorID = id
		}
		items, err := e.Repo.ListConversations(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedConversations{Items: []conversationResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = last.CreatedAt + "|" + last.ID
			items = items[:limit]
		}
		for _, c := range items {
			resp.Items = append(resp.Items, toConversationResponse(c))
		}
		return &struct {
			Body paginatedConversations `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/conversations/{conversation_id}",
		Summary:     "Get conversation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID       string `path:"tenant_id"`
		ConversationID string `path:"conversation_id"`
	}) (*struct {
		Body conversationResponse `json:"body"`
	}, error) {
		if authErr := requireTenant(ctx, input.TenantID); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetConversation(ctx, input.TenantID, input.ConversationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body conversationResponse `json:"body"`
		}{Body: toConversationResponse(c)}, nil
	})
}

func registerTenants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/tenants",
		Summary:     "Create tenant",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body tenantCreateRequest `json:"body"`
	}) (*struct {
		Body tenantResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" || input.Body.ChatTeamID == "" || input.Body.TrackerWorkspaceID == "" || input.Body.SheetID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name, chat_team_id, tracker_workspace_id and sheet_id required", nil)
		}
		t := domain.Tenant{
			ID:                 uuid.NewString(),
			Name:               input.Body.Name,
			ChatTeamID:         input.Body.ChatTeamID,
			ChatBotUserID:      input.Body.ChatBotUserID,
			TrackerWorkspaceID: input.Body.TrackerWorkspaceID,
			SheetID:            input.Body.SheetID,
			NotifyURL:          input.Body.NotifyURL,
			CreatedAt:          e.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertTenant(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tenantResponse `json:"body"`
		}{Body: toTenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []tenantResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		tenants, err := e.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := []tenantResponse{}
		for _, t := range tenants {
			out = append(out, toTenantResponse(t))
		}
		return &struct {
			Body []tenantResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body tenantResponse `json:"body"`
	}, error) {
		if authErr := requireTenant(ctx, input.TenantID); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tenantResponse `json:"body"`
		}{Body: toTenantResponse(t)}, nil
	})
}

// NewAPIKeyValue mints a plaintext key. Only the hash is stored.
func NewAPIKeyValue() string {
	return "cbk_" + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/api-keys",
		Summary:     "Issue API key",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     apiKeyCreateRequest `json:"body"`
	}) (*struct {
		Body apiKeyCreatedResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetTenant(ctx, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		plaintext := NewAPIKeyValue()
		key := domain.APIKey{
			ID:        uuid.NewString(),
			TenantID:  input.TenantID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(plaintext),
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body apiKeyCreatedResponse `json:"body"`
		}{Body: apiKeyCreatedResponse{
			ID:        key.ID,
			TenantID:  key.TenantID,
			Name:      key.Name,
			Key:       plaintext,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []apiKeyResponse `json:"body"`
	}, error) {
		if authErr := requireTenant(ctx, input.TenantID); authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		out := []apiKeyResponse{}
		for _, k := range keys {
			out = append(out, apiKeyResponse{ID: k.ID, TenantID: k.TenantID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []apiKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/api-keys/{key_id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		KeyID    string `path:"key_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.TenantID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

type paginatedEvents struct {
	Items      []eventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		Type     string `query:"type"`
		TaskID   string `query:"task_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if authErr := requireTenant(ctx, input.TenantID); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.TenantID, input.Type, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []eventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, toEventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
