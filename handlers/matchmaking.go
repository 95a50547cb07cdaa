package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"match-lobby-system/middleware"
	"match-lobby-system/models"
	"match-lobby-system/services"
)

// MatchmakingHandler binds the engine to HTTP. All rules live in services/;
// this layer only parses requests and maps the error taxonomy onto status
// codes.
type MatchmakingHandler struct {
	Engine *services.MatchmakingService
}

// SetupMatchmakingRoutes registers the engine's operation set.
func SetupMatchmakingRoutes(app *fiber.App, engine *services.MatchmakingService) {
	h := &MatchmakingHandler{Engine: engine}

	api := app.Group("/", middleware.IdempotencyKey())
	api.Post("/matches", h.CreateMatch)
	api.Get("/lobbies", h.GetOpenLobbies)
	api.Post("/matches/:id/join", h.JoinMatch)
	api.Post("/matches/:id/cancel", h.CancelMatch)
	api.Get("/matches/:id", h.GetMatchDetails)
	api.Get("/players/:name/matches", h.GetPlayerMatches)
	api.Get("/players/:name/stats", h.GetPlayerStats)
	api.Get("/stats", h.GetMatchmakingStats)
}

type submissionRequest struct {
	PlayerName     string `json:"player_name"`
	Score          int64  `json:"score"`
	Level          *int   `json:"level"`
	ExternalUserID string `json:"external_user_id"`
}

// level defaults an omitted level to 1. An explicit "level": 0 stays 0 so
// validation rejects it instead of silently upgrading it.
func (r *submissionRequest) level() int {
	if r.Level == nil {
		return 1
	}
	return *r.Level
}

func (h *MatchmakingHandler) CreateMatch(c *fiber.Ctx) error {
	var req submissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	match, err := h.Engine.CreateMatch(c.Context(), req.PlayerName, req.Score, req.level(), req.ExternalUserID, middleware.RequestKey(c))
	if err != nil {
		if errors.Is(err, models.ErrAlreadyWaiting) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
				"code":  models.CodeAlreadyWaiting,
				"match": match,
			})
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(match)
}

func (h *MatchmakingHandler) GetOpenLobbies(c *fiber.Ctx) error {
	lobbies, err := h.Engine.GetOpenLobbies(c.Context(), c.QueryInt("limit", 0), middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lobbies": lobbies, "count": len(lobbies)})
}

func (h *MatchmakingHandler) JoinMatch(c *fiber.Ctx) error {
	var req submissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	result, err := h.Engine.JoinMatch(c.Context(), c.Params("id"), req.PlayerName, req.Score, req.level(), req.ExternalUserID, middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *MatchmakingHandler) CancelMatch(c *fiber.Ctx) error {
	var req struct {
		PlayerName string `json:"player_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if err := h.Engine.CancelMatch(c.Context(), c.Params("id"), req.PlayerName); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "match cancelled", "match_id": c.Params("id")})
}

func (h *MatchmakingHandler) GetMatchDetails(c *fiber.Ctx) error {
	match, err := h.Engine.GetMatchDetails(c.Context(), c.Params("id"), middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(match)
}

func (h *MatchmakingHandler) GetPlayerMatches(c *fiber.Ctx) error {
	matches, err := h.Engine.GetPlayerMatches(c.Context(), c.Params("name"), c.QueryInt("limit", 0), middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches, "count": len(matches)})
}

func (h *MatchmakingHandler) GetPlayerStats(c *fiber.Ctx) error {
	stats, err := h.Engine.GetPlayerStats(c.Context(), c.Params("name"), middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	if stats == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no stats for player"})
	}
	return c.JSON(stats)
}

func (h *MatchmakingHandler) GetMatchmakingStats(c *fiber.Ctx) error {
	stats, err := h.Engine.GetMatchmakingStats(c.Context(), middleware.RequestKey(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// respondError maps the engine's error taxonomy to HTTP. Preconditions are
// definitive 409s, contention is a retriable 503, anything unrecognized is a
// plain 500.
func respondError(c *fiber.Ctx, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error(), "code": models.CodeValidation})
	}

	code := models.ErrorCode(err)
	switch code {
	case models.CodeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error(), "code": code})
	case models.CodeNotAvailable, models.CodeSelfJoin, models.CodeAlreadyFull,
		models.CodeNotWaiting, models.CodeNotCreator, models.CodeAlreadyWaiting:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": code})
	case models.CodeContention:
		c.Set("Retry-After", "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error(), "code": code})
	case models.CodeUnavailable:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "code": code})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
