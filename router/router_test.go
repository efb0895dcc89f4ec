package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brkdash/internal/configdoc/repository"
	"brkdash/internal/configdoc/service"
	"brkdash/internal/events"
	"brkdash/socket"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeps(t *testing.T, hub *socket.Hub) Deps {
	t.Helper()
	core := t.TempDir()
	repo := repository.NewFileRepository(repository.Paths{
		SetupConfig:   filepath.Join(core, "BRK_SETUP_WIZARD_CONFIG.json"),
		CompanyConfig: filepath.Join(core, "test-data", "source_data", "company-config.json"),
		ArchiveDir:    filepath.Join(core, "config_archive"),
		BackupsDir:    filepath.Join(core, "test-data", "backups"),
	})
	var pub events.Publisher
	if hub != nil {
		pub = hub
	}
	return Deps{
		Service:        service.NewConfigService(repo, service.Options{Publisher: pub}),
		Hub:            hub,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
}

func TestPreflightIsAnsweredBeforeRouting(t *testing.T) {
	h := Setup(newDeps(t, nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/company-config/backups", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestResponsesCarryRequestID(t *testing.T) {
	h := Setup(newDeps(t, nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestUnknownRouteIs404(t *testing.T) {
	h := Setup(newDeps(t, nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "no websocket route without a hub")
}

func TestWebsocketReceivesBackupCreated(t *testing.T) {
	hub := socket.NewHub()
	go hub.Run()
	t.Cleanup(func() { hub.Close() })

	server := httptest.NewServer(Setup(newDeps(t, hub)))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() socket.WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, p, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg socket.WSMessage
		require.NoError(t, json.Unmarshal(p, &msg))
		return msg
	}
	require.Equal(t, socket.HelloType, read().Type)
	require.Equal(t, socket.PresenceUpdateType, read().Type)

	post := func(body string) {
		t.Helper()
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL+"/api/company-config", strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	post(`{"version":1}`)
	assert.Equal(t, "CONFIG_SAVED", read().Type)

	post(`{"version":2}`)
	msg := read()
	assert.Equal(t, "BACKUP_CREATED", msg.Type)
	assert.Contains(t, string(msg.Payload), "company-config.backup_")
	assert.Equal(t, "CONFIG_SAVED", read().Type)
}
