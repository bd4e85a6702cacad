package airbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/airbot/core/bootstrap"
	coreconfig "github.com/m3rciful/airbot/core/config"
	coretelegram "github.com/m3rciful/airbot/core/telegram"
	"github.com/m3rciful/airbot/core/web"
)

func newMemoryApp(t *testing.T, cfg *coreconfig.Config) *App {
	t.Helper()
	cfg.State.Backend = coreconfig.BackendMemory
	app, err := newApp(context.Background(), bootstrap.Options{
		Config:     cfg,
		LoggerInit: func(*coreconfig.Config) error { return nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestAppWithoutHTTP(t *testing.T) {
	app := newMemoryApp(t, &coreconfig.Config{})
	require.Nil(t, app.HTTPServer())
	require.NotNil(t, app.Controller())
}

func TestAppHTTPTurn(t *testing.T) {
	app := newMemoryApp(t, &coreconfig.Config{
		HTTP:   coreconfig.HTTPConfig{Listen: "127.0.0.1:0"},
		Dialog: coreconfig.DialogConfig{Confirm: true},
	})
	srv := app.HTTPServer()
	require.NotNil(t, srv)

	body := `{"type":"message","conversation_id":"c1","from":{"id":"u1"},"text":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res web.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, []string{FirstWelcomeMessage, FirstWhatCanIDoMessage, FromPrompt}, texts(res.Messages))
}

func TestTelegramWiring(t *testing.T) {
	app := newMemoryApp(t, &coreconfig.Config{})
	opts, err := app.TelegramRunOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Wire)
	require.NotEmpty(t, opts.Middlewares)

	reg := coretelegram.NewRegistry()
	routes, err := opts.Wire(coretelegram.Runtime{Registry: reg, Me: &tele.User{ID: 42, Username: "airbot"}})
	require.NoError(t, err)

	// two commands, text, callback and member routes
	require.Len(t, routes, 5)
	_, ok := reg.Resolve("/cancel")
	require.True(t, ok)
	require.NotNil(t, reg.TextFallback())
	require.Len(t, reg.Menu(), 2)
}
