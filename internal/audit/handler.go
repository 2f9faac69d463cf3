package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const (
	rateLimit  = 10
	rateWindow = time.Minute
	maxRange   = 90 * 24 * time.Hour
	dateLayout = "2006-01-02"
)

// TimelineService is the subset of Service used by the handler.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the audit timeline and its CSV export.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   shared.PermissionGuard
	loc     *time.Location
	now     func() time.Time
}

// NewHandler membuat handler audit timeline.
func NewHandler(logger *slog.Logger, service TimelineService, guard shared.PermissionGuard, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, guard: guard, loc: loc, now: time.Now}
}

// MountRoutes mendaftarkan endpoint audit timeline dan ekspor CSV.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermAuditView))
		r.Get("/", h.handleTimeline)
		r.With(limiter).Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if result.Rows == nil {
		result.Rows = []TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	filename := fmt.Sprintf("audit-%s-%s.csv", filters.From.Format(dateLayout), filters.To.AddDate(0, 0, -1).Format(dateLayout))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"timestamp", "actor", "action", "entity", "entity_id", "meta"})
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			if raw, err := json.Marshal(row.Meta); err == nil {
				meta = string(raw)
			}
		}
		actor := row.Actor
		if actor == "" {
			actor = strconv.FormatInt(row.ActorID, 10)
		}
		_ = writer.Write([]string{
			row.At.In(h.loc).Format(time.RFC3339),
			actor,
			row.Action,
			row.Entity,
			row.EntityID,
			meta,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("audit export write", slog.Any("error", err))
	}
}

// parseFilters reads from/to (inclusive dates), actor, entity, action, page and
// page_size. The window defaults to the last seven days ending today.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().In(h.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	to := today
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return TimelineFilters{}, fmt.Errorf("%w: invalid to date", shared.ErrValidation)
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -7)
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return TimelineFilters{}, fmt.Errorf("%w: invalid from date", shared.ErrValidation)
		}
		from = parsed
	}
	if from.After(to) {
		return TimelineFilters{}, fmt.Errorf("%w: from must not be after to", shared.ErrValidation)
	}
	if to.Sub(from) > maxRange {
		return TimelineFilters{}, fmt.Errorf("%w: range must not exceed 90 days", shared.ErrValidation)
	}
	actorID, err := httpx.OptionalInt64Query(r, "actor")
	if err != nil {
		return TimelineFilters{}, err
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return TimelineFilters{
		From:     from,
		To:       to.AddDate(0, 0, 1),
		ActorID:  actorID,
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
