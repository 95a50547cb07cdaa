package handlers_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-lobby-system/handlers"
	"match-lobby-system/models"
	"match-lobby-system/services"
	"match-lobby-system/storage"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewStore(client)
	engine := services.NewMatchmakingService(store, services.NewStatsService(store), services.NewIdempotencyCache(store), nil)

	app := fiber.New()
	handlers.SetupMatchmakingRoutes(app, engine)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func TestCreateMatchDefaultsOmittedLevel(t *testing.T) {
	app := newTestApp(t)

	status, body := postJSON(t, app, "/matches", `{"player_name":"alice","score":40}`)
	require.Equal(t, fiber.StatusCreated, status)

	player1, ok := body["player1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), player1["level"])
}

func TestCreateMatchRejectsExplicitZeroLevel(t *testing.T) {
	app := newTestApp(t)

	status, body := postJSON(t, app, "/matches", `{"player_name":"alice","score":40,"level":0}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, body["code"])
}

func TestJoinMatchRejectsExplicitZeroLevel(t *testing.T) {
	app := newTestApp(t)

	status, created := postJSON(t, app, "/matches", `{"player_name":"alice","score":40,"level":3}`)
	require.Equal(t, fiber.StatusCreated, status)
	matchID, ok := created["id"].(string)
	require.True(t, ok)

	status, body := postJSON(t, app, "/matches/"+matchID+"/join", `{"player_name":"bob","score":50,"level":0}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, body["code"])
}
