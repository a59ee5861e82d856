package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/auth"
	"github.com/iliyamo/items-api/internal/model"
	"github.com/iliyamo/items-api/internal/queue"
)

// MaxPageSize caps the limit query parameter of the list endpoint.
const MaxPageSize = 100

// ItemStore is the persistence the item endpoints need.
type ItemStore interface {
	Create(ctx context.Context, it *model.Item) error
	GetByID(ctx context.Context, id uint64) (model.Item, error)
	List(ctx context.Context, skip, limit int) ([]model.Item, error)
	Update(ctx context.Context, id uint64, title, description string) (model.Item, error)
	Delete(ctx context.Context, id uint64) error
}

// EventPublisher announces committed item changes.
type EventPublisher interface {
	PublishItemEvent(ctx context.Context, eventType string, it model.Item, actorID uint64) error
}

// AnalysisFetcher reads an item's analysis from the analysis service.
type AnalysisFetcher interface {
	GetItemAnalysis(ctx context.Context, id uint64) (map[string]any, error)
}

// ItemHandler serves the /items endpoints. Every route is behind JWTAuth,
// so the caller is always a resolved, active user.
type ItemHandler struct {
	Items    ItemStore
	Events   EventPublisher  // nil disables events
	Analysis AnalysisFetcher // nil disables /items/:id/analysis
	Log      *zap.SugaredLogger
}

func NewItemHandler(items ItemStore, events EventPublisher, an AnalysisFetcher, log *zap.SugaredLogger) *ItemHandler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ItemHandler{Items: items, Events: events, Analysis: an, Log: log}
}

type itemReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r *itemReq) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return badRequest("title is required")
	}
	return nil
}

// Create handles POST /items. The caller becomes the owner.
func (h *ItemHandler) Create(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req itemReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	it := model.Item{Title: req.Title, Description: req.Description, OwnerID: u.ID}
	if err := h.Items.Create(c.Request().Context(), &it); err != nil {
		return err
	}
	h.publish(queue.ItemCreated, it, u.ID)
	return c.JSON(http.StatusOK, it)
}

// List handles GET /items?skip=&limit=. Any authenticated user may list
// every item.
func (h *ItemHandler) List(c echo.Context) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", MaxPageSize)
	if err != nil {
		return err
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	items, err := h.Items.List(c.Request().Context(), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// Get handles GET /items/:id.
func (h *ItemHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	it, err := h.Items.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

// Update handles PUT /items/:id. Missing item wins over foreign item: a
// non-owner probing a deleted ID gets 404, not 403.
func (h *ItemHandler) Update(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req itemReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	existing, err := h.Items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(u, existing.OwnerID); err != nil {
		return err
	}
	updated, err := h.Items.Update(ctx, id, req.Title, req.Description)
	if err != nil {
		return err
	}
	h.publish(queue.ItemUpdated, updated, u.ID)
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /items/:id.
func (h *ItemHandler) Delete(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	existing, err := h.Items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(u, existing.OwnerID); err != nil {
		return err
	}
	if err := h.Items.Delete(ctx, id); err != nil {
		return err
	}
	h.publish(queue.ItemDeleted, existing, u.ID)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// GetAnalysis handles GET /items/:id/analysis. The item must exist locally
// before the analysis service is asked about it.
func (h *ItemHandler) GetAnalysis(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if h.Analysis == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "analysis service not configured")
	}
	ctx := c.Request().Context()
	if _, err := h.Items.GetByID(ctx, id); err != nil {
		return err
	}
	out, err := h.Analysis.GetItemAnalysis(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// publish sends the event in the background; the request has already
// committed and does not wait on the broker.
func (h *ItemHandler) publish(eventType string, it model.Item, actorID uint64) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Events.PublishItemEvent(ctx, eventType, it, actorID); err != nil {
			h.Log.Warnw("publish item event", "type", eventType, "item_id", it.ID, "err", err)
		}
	}()
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}
