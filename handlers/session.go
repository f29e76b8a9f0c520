// handlers/session_routes.go
package handlers

import (
	"errors"

	"game-session-engine/middleware"
	"game-session-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupSessionRoutes registers the read-only REST surface. All live
// mutation goes through the websocket gateway; these endpoints exist
// for spectator views and queue dashboards.
func SetupSessionRoutes(app *fiber.App, matchmaking *services.MatchmakingService, sessions *services.SessionService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/sessions/:code", func(c *fiber.Ctx) error {
		snapshot, err := sessions.SnapshotByCode(c.Params("code"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snapshot)
	})

	secured.Get("/matchmaking/status", func(c *fiber.Ctx) error {
		mode := c.Query("mode")
		playerCount := c.QueryInt("player_count")
		if mode == "" || playerCount == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "mode and player_count are required",
			})
		}
		depth, err := matchmaking.QueueDepth(mode, playerCount)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"mode":         mode,
			"player_count": playerCount,
			"queue_depth":  depth,
		})
	})
}

func respondError(c *fiber.Ctx, err error) error {
	var gameErr *services.GameError
	if errors.As(err, &gameErr) {
		status := fiber.StatusBadRequest
		switch gameErr.Kind {
		case services.KindNotFound:
			status = fiber.StatusNotFound
		case services.KindStateConflict:
			status = fiber.StatusConflict
		case services.KindForbidden:
			status = fiber.StatusForbidden
		}
		return c.Status(status).JSON(fiber.Map{"error": gameErr.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
