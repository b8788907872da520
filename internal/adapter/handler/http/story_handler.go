package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"go.uber.org/zap"
)

// StoryGenerator runs the paid generation pipeline.
type StoryGenerator interface {
	Generate(ctx context.Context, userID string, req entity.StoryRequest) (*usecase.GenerationResult, error)
	ListStories(ctx context.Context, userID string, params entity.PaginationParams) ([]model.StoryGeneration, entity.PaginationMeta, error)
}

type StoryHandler struct {
	stories StoryGenerator
	logger  *zap.Logger
}

func NewStoryHandler(stories StoryGenerator, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		stories: stories,
		logger:  logger,
	}
}

// Create handles POST /api/v1/stories.
func (h *StoryHandler) Create(c echo.Context) error {
	var req entity.StoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err, "Invalid story request")
	}

	result, err := h.stories.Generate(c.Request().Context(), userIDOf(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "Story generation failed")
	}
	return c.JSON(http.StatusCreated, result)
}

// List handles GET /api/v1/stories.
func (h *StoryHandler) List(c echo.Context) error {
	var params entity.PaginationParams
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &params); err != nil {
		return badRequest(c, "Invalid pagination parameters")
	}

	stories, meta, err := h.stories.ListStories(c.Request().Context(), userIDOf(c), params)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list stories")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"stories":    stories,
		"pagination": meta,
	})
}
