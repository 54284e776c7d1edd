package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicegate/config"
	"devicegate/internal/handlers"
	"devicegate/internal/kv/memory"
	"devicegate/internal/models"
	"devicegate/internal/routes"
	"devicegate/internal/services"
)

const (
	adminKey = "test-admin-key"
	deviceA  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	deviceB  = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

type fixture struct {
	app   *fiber.App
	store *memory.Store
	cfg   *config.Config
	logs  *services.LogService
	users *services.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		AdminKey:          adminKey,
		UsersTable:        "users",
		AuthLogsTable:     "auth_logs",
		ActivityLogsTable: "activity_logs",
	}
	store := memory.New()

	userService := services.NewUserService(store, cfg)
	logService := services.NewLogService(store, cfg)
	authService := services.NewAuthService(store, logService, cfg)

	app := fiber.New(fiber.Config{CaseSensitive: true})
	routes.SetupRoutes(app, cfg,
		handlers.NewUserHandler(userService),
		handlers.NewAuthHandler(authService),
		handlers.NewLogHandler(logService),
	)

	return &fixture{app: app, store: store, cfg: cfg, logs: logService, users: userService}
}

type message struct {
	Message string `json:"message"`
}

func (f *fixture) request(t *testing.T, method, path string, body map[string]any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func decodeMessage(t *testing.T, raw []byte) string {
	t.Helper()
	var m message
	require.NoError(t, json.Unmarshal(raw, &m))
	return m.Message
}

func TestAdminKeyCheckedBeforeValidation(t *testing.T) {
	f := newFixture(t)

	// Wrong key and missing userId: the key check must win
	resp, raw := f.request(t, "POST", "/user", map[string]any{"authKey": "wrong"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decodeMessage(t, raw))

	// Missing key entirely
	resp, raw = f.request(t, "POST", "/user", map[string]any{"userId": "u1"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decodeMessage(t, raw))

	// Nothing was written
	items, err := f.store.Scan(t.Context(), f.cfg.UsersTable)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAdminKeyRequiredForAuthLogFetch(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.request(t, "POST", "/log/auth/u1", map[string]any{})
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = f.request(t, "POST", "/log/auth/u1", map[string]any{"authKey": adminKey})
	assert.Equal(t, 200, resp.StatusCode)
}

func TestValidationListsEveryMissingField(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "POST", "/auth", map[string]any{})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Missing or empty required parameter(s): userId, deviceId", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": ""})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Missing or empty required parameter(s): deviceId", decodeMessage(t, raw))
}

func TestDeviceFormatPrecheckLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.users.Create(ctx, "u1", "900"))

	resp, raw := f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": "short"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Invalid Device ID", decodeMessage(t, raw))

	// No binding, no auth log entry
	u, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.Bound())

	entries, err := f.logs.FetchAuthLogs(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMalformedBodyIsInternalError(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/auth", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 500, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Internal server error", decodeMessage(t, raw))
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "GET", "/nope", nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Not found", decodeMessage(t, raw))
}

func TestRecordActivity(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "POST", "/log", map[string]any{"userId": "u1", "message": "app opened"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Log recorded", decodeMessage(t, raw))

	items, err := f.store.Scan(t.Context(), f.cfg.ActivityLogsTable)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "app opened", items[0].String(models.AttrMessage))

	resp, raw = f.request(t, "POST", "/log", map[string]any{"userId": "u1"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Missing or empty required parameter(s): message", decodeMessage(t, raw))
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.users.Create(ctx, "u1", "900"))
	require.NoError(t, f.users.Create(ctx, "u2", "901"))

	resp, raw := f.request(t, "POST", "/users", map[string]any{"authKey": adminKey})
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Len(t, body.Users, 2)
}

func TestExportAuthLogs(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.logs.RecordAuthAttempt(ctx, &models.AuthLogEntry{
		UserID: "u1", Message: models.AuthMsgRegistered, Timestamp: "1000", DeviceID: deviceA, Success: true, IP: "ip",
	}))

	resp, raw := f.request(t, "POST", "/log/auth/u1/export", map[string]any{"authKey": adminKey})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "auth-logs-u1.xlsx")
	assert.NotEmpty(t, raw)
}

// Full walk of the documented contract: create, conflict, bind, mismatch,
// reset, rebind.
func TestEndToEndFlow(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "POST", "/user", map[string]any{"userId": "u1", "authKey": adminKey})
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "User created", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/user", map[string]any{"userId": "u1", "authKey": adminKey})
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "User already exists", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": deviceA})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Authentication successful", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": deviceB})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Device ID mismatch", decodeMessage(t, raw))

	resp, raw = f.request(t, "PUT", "/user", map[string]any{"userId": "u1", "authKey": adminKey})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "User key reset", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": deviceB})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Authentication successful", decodeMessage(t, raw))

	resp, raw = f.request(t, "DELETE", "/user", map[string]any{"userId": "u1", "authKey": adminKey})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "User deleted", decodeMessage(t, raw))

	resp, raw = f.request(t, "POST", "/auth", map[string]any{"userId": "u1", "deviceId": deviceB})
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "User not found", decodeMessage(t, raw))

	// The auth trail recorded the attempts. Entries within the same second
	// share a composite key, so the count may collapse, but the trail is
	// never empty and only carries known outcome messages.
	logsResp, logsRaw := f.request(t, "POST", "/log/auth/u1", map[string]any{"authKey": adminKey})
	assert.Equal(t, 200, logsResp.StatusCode)

	var body struct {
		Logs []models.AuthLogEntry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(logsRaw, &body))
	require.NotEmpty(t, body.Logs)

	known := map[string]bool{
		models.AuthMsgRegistered:    true,
		models.AuthMsgAuthenticated: true,
		models.AuthMsgMismatch:      true,
		models.AuthMsgUserNotFound:  true,
	}
	for _, entry := range body.Logs {
		assert.True(t, known[entry.Message], "unexpected outcome message %q", entry.Message)
		assert.Equal(t, "u1", entry.UserID)
	}
}

func TestDeleteMissingUser(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "DELETE", "/user", map[string]any{"userId": "ghost", "authKey": adminKey})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "User not found", decodeMessage(t, raw))
}

func TestResetMissingUser(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.request(t, "PUT", "/user", map[string]any{"userId": "ghost", "authKey": adminKey})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "User not found", decodeMessage(t, raw))
}
