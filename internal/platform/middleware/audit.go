package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/claimsdb/internal/platform/auth"
)

// ChangeEntry describes one write made through the API.
type ChangeEntry struct {
	RequestID string
	UserID    string
	UserRoles []string
	Action    string
	Context   string
	Entity    string
	EntityID  string
	Method    string
	Path      string
	Status    int
}

// Audit logs every create, update and delete under /api/v1 after the handler
// has run, with the caller's identity from the auth middleware.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := ChangeEntry{
				UserID:    auth.UserIDFromContext(req.Context()),
				UserRoles: auth.RolesFromContext(req.Context()),
				Action:    action,
				Method:    req.Method,
				Path:      req.URL.Path,
				Status:    c.Response().Status,
			}
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				entry.Status = he.Code
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.Context, entry.Entity, entry.EntityID = splitEntityPath(req.URL.Path)

			evt := logger.Info()
			if err != nil || entry.Status >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("context", entry.Context).
				Str("entity", entry.Entity).
				Str("entity_id", entry.EntityID).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Msg("change")

			return err
		}
	}
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// splitEntityPath reads the bounded context, entity and id from an API path.
//
//   - /api/v1/claims/42/status          -> billing, claims, 42
//   - /api/v1/clinical/admissions/7     -> clinical, admissions, 7
//   - /api/v1/clinical/markers          -> clinical, markers, ""
func splitEntityPath(path string) (ctx, entity, id string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	ctx = "billing"
	if segments[0] == "clinical" {
		ctx = "clinical"
		segments = segments[1:]
	}
	if len(segments) > 0 {
		entity = segments[0]
	}
	if len(segments) > 1 {
		id = segments[1]
	}
	return ctx, entity, id
}
