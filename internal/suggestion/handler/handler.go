package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"refkb/internal/audit"
	"refkb/internal/platform/middleware"
	"refkb/internal/suggestion/models"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/platform/httputil"
	"refkb/pkg/requestcontext"
)

// Service defines the suggestion operations exposed over HTTP.
type Service interface {
	Apply(ctx context.Context, suggestionID uuid.UUID, actorID string) (*models.Changes, error)
	Revert(ctx context.Context, suggestionID uuid.UUID, actorID string) error
	History(ctx context.Context, suggestionID uuid.UUID) ([]audit.Entry, error)
	Get(ctx context.Context, suggestionID uuid.UUID) (*models.Suggestion, error)
	List(ctx context.Context, statuses ...models.Status) ([]*models.Suggestion, error)
}

// Handler serves the admin suggestion endpoints.
type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

// New creates a new suggestion Handler.
func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{
		service:    service,
		logger:     logger,
		adminToken: adminToken,
	}
}

// Register registers the admin suggestion routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/suggestions", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
		r.Use(middleware.Actor)
		r.Use(middleware.ContentTypeJSON)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/apply", h.handleApply)
		r.Post("/{id}/revert", h.handleRevert)
		r.Get("/{id}/audit", h.handleAudit)
	})
}

type applyResponse struct {
	Success bool            `json:"success"`
	Changes *models.Changes `json:"changes,omitempty"`
}

type historyResponse struct {
	SuggestionID uuid.UUID     `json:"suggestionId"`
	Entries      []audit.Entry `json:"entries"`
}

type listResponse struct {
	Suggestions []*models.Suggestion `json:"suggestions"`
}

type failureResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}

	changes, err := h.service.Apply(ctx, id, actor)
	if err != nil {
		h.fail(ctx, w, "apply", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applyResponse{Success: true, Changes: changes})
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.Revert(ctx, id, actor); err != nil {
		h.fail(ctx, w, "revert", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applyResponse{Success: true})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "audit", uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid suggestion id"))
		return
	}

	entries, err := h.service.History(ctx, id)
	if err != nil {
		h.fail(ctx, w, "audit", id, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{SuggestionID: id, Entries: entries})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		h.fail(ctx, w, "list", uuid.Nil, err)
		return
	}

	suggestions, err := h.service.List(ctx, statuses...)
	if err != nil {
		h.fail(ctx, w, "list", uuid.Nil, err)
		return
	}
	if suggestions == nil {
		suggestions = []*models.Suggestion{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Suggestions: suggestions})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "get", uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid suggestion id"))
		return
	}

	sug, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sug)
}

// parseStatuses accepts repeated or comma-separated status values and
// defaults to approved.
func parseStatuses(values []string) ([]models.Status, error) {
	var out []models.Status
	for _, v := range values {
		for _, raw := range strings.Split(v, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			st, ok := models.ParseStatus(raw)
			if !ok {
				return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status "+strconv.Quote(raw))
			}
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		out = []models.Status{models.StatusApproved}
	}
	return out, nil
}

// target extracts the suggestion id and acting reviewer, writing the failure
// response itself when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "parse", uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid suggestion id"))
		return uuid.Nil, "", false
	}
	actor := requestcontext.ActorID(ctx)
	if actor == "" {
		h.fail(ctx, w, "parse", id, dErrors.New(dErrors.CodeUnauthorized, middleware.HeaderActorID+" header is required"))
		return uuid.Nil, "", false
	}
	return id, actor, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, id uuid.UUID, err error) {
	code := dErrors.CodeOf(err)
	resp := failureResponse{Error: string(code)}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "suggestion request failed",
			"operation", op,
			"suggestion_id", id,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		resp.ErrorDescription = dErrors.Message(err)
		h.logger.WarnContext(ctx, "suggestion request rejected",
			"operation", op,
			"suggestion_id", id,
			"code", code,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteJSON(w, httputil.StatusFor(code), resp)
}
