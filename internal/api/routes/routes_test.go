package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoclicker/internal/api/handlers"
	"echoclicker/internal/broadcast"
	"echoclicker/internal/models"
	"echoclicker/internal/services"
	"echoclicker/pkg/auth"
	"echoclicker/pkg/chrome"
	"echoclicker/pkg/store"
)

type fakeCoordinator struct {
	mu       sync.Mutex
	state    models.AutomationState
	recorded []models.Action
	executed [][]models.Action
	outcome  models.Outcome
	err      error
	// startDelay holds StartRecording back before it takes the lock.
	startDelay time.Duration
}

func (f *fakeCoordinator) GetState() models.AutomationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeCoordinator) StartRecording(ctx context.Context, page models.PageID) error {
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Recording {
		return fmt.Errorf("%w: recording already in progress", models.ErrAlreadyActive)
	}
	f.state.Recording, f.state.RecordingPageID = true, page
	return nil
}

func (f *fakeCoordinator) StopRecording(ctx context.Context) ([]models.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Recording {
		return nil, fmt.Errorf("%w: not recording", models.ErrNotActive)
	}
	f.state.Recording, f.state.RecordingPageID = false, ""
	return f.recorded, nil
}

func (f *fakeCoordinator) ExecuteScript(ctx context.Context, page models.PageID, actions []models.Action) (models.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, actions)
	if f.err != nil {
		return models.FailedOutcome(f.err), f.err
	}
	return f.outcome, nil
}

func (f *fakeCoordinator) EnterSelectionMode(ctx context.Context, page models.PageID, variant models.SelectionVariant) error {
	if variant == "" {
		return nil
	}
	return variant.Validate()
}

func (f *fakeCoordinator) StartAutoClicker(ctx context.Context, page models.PageID, opts models.AutoClickOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.AutoClicking, f.state.AutoClickingPageID = true, page
	return nil
}

func (f *fakeCoordinator) StopAutoClicker(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.AutoClicking {
		return fmt.Errorf("%w: auto-clicker not running", models.ErrNotActive)
	}
	f.state.AutoClicking, f.state.AutoClickingPageID = false, ""
	return nil
}

func (f *fakeCoordinator) Dispatch(ctx context.Context, req models.Request) models.Response {
	resp := models.OKResponse()
	var err error
	switch req.Action {
	case models.MsgGetState:
		st := f.GetState()
		resp.State = &st
	case models.MsgStartRecording:
		err = f.StartRecording(ctx, req.PageID)
	case models.MsgStopRecording:
		resp.Actions, err = f.StopRecording(ctx)
	case models.MsgStartAutoClicker:
		var opts models.AutoClickOptions
		if req.Options != nil {
			opts = *req.Options
		}
		err = f.StartAutoClicker(ctx, req.PageID, opts)
	case models.MsgStopAutoClicker:
		err = f.StopAutoClicker(ctx)
	}
	if err != nil {
		resp = models.ErrorResponse(err)
	}
	resp.ID = req.ID
	return resp
}

type fakeBrowser struct{}

func (fakeBrowser) Pages(ctx context.Context) ([]chrome.PageInfo, error) {
	return []chrome.PageInfo{{ID: "p1", URL: "https://example.com/", Title: "Example"}}, nil
}

func (fakeBrowser) NewPage(ctx context.Context, url string) (string, error) {
	return "p2", nil
}

func (fakeBrowser) Emulate(ctx context.Context, id, device string) error {
	return nil
}

type env struct {
	router *gin.Engine
	coord  *fakeCoordinator
	store  *store.MemoryStore
	hub    *broadcast.Hub
}

func newEnv(t *testing.T, issuer *auth.Issuer) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		coord: &fakeCoordinator{outcome: models.Outcome{Status: models.OutcomeSuccess, StepIndex: -1}},
		store: store.NewMemoryStore(),
		hub:   broadcast.NewHub(nil),
	}
	t.Cleanup(e.hub.Close)
	sched := services.NewSchedulerService(e.coord, e.store, nil)
	h := handlers.New(e.coord, fakeBrowser{}, e.store, sched, e.hub, nil)
	e.router = SetupRoutes(h, issuer, nil)
	return e
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordingFlow(t *testing.T) {
	e := newEnv(t, nil)
	e.coord.recorded = []models.Action{models.Click("#a"), models.Type("#b", "hi")}

	code, _ := e.do(t, http.MethodPost, "/api/v1/recording/start", gin.H{"page_id": "p1"})
	assert.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodPost, "/api/v1/recording/start", gin.H{"page_id": "p2"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AlreadyActive", body.Kind)

	code, body = e.do(t, http.MethodPost, "/api/v1/recording/stop", nil)
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Actions []models.Action `json:"actions"`
		Script  string          `json:"script"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, e.coord.recorded, data.Actions)
	assert.Equal(t, "click(\"#a\");\ntype(\"#b\", \"hi\");", strings.TrimSpace(data.Script))

	code, body = e.do(t, http.MethodPost, "/api/v1/recording/stop", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NotActive", body.Kind)
}

func TestStartRecordingNeedsPage(t *testing.T) {
	e := newEnv(t, nil)
	code, _ := e.do(t, http.MethodPost, "/api/v1/recording/start", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExecuteScriptText(t *testing.T) {
	e := newEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/v1/scripts/execute", gin.H{
		"page_id": "p1",
		"script":  "click(\"#x\");\nwait(250);\nnonsense\n",
	})
	require.Equal(t, http.StatusOK, code, string(body.Data))
	require.Len(t, e.coord.executed, 1)
	assert.Equal(t, []models.Action{models.Click("#x"), models.Wait(250)}, e.coord.executed[0])
	assert.Contains(t, string(body.Data), `"line":3`)
}

func TestExecuteScriptMalformed(t *testing.T) {
	e := newEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/v1/scripts/execute", gin.H{
		"page_id": "p1",
		"script":  "hover(\"#x\");",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "MalformedScript", body.Kind)
	assert.Empty(t, e.coord.executed)
}

func TestExecuteScriptFailureOutcome(t *testing.T) {
	e := newEnv(t, nil)
	e.coord.outcome = models.Outcome{
		Status:    models.OutcomeError,
		Kind:      models.KindElementNotFound,
		Message:   "element not found: #missing",
		Selector:  "#missing",
		StepIndex: 0,
	}

	code, body := e.do(t, http.MethodPost, "/api/v1/scripts/execute", gin.H{
		"page_id": "p1",
		"actions": []models.Action{models.Click("#missing")},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ElementNotFound", body.Kind)
	assert.Contains(t, string(body.Data), `"selector":"#missing"`)
}

func TestExecuteAgentUnreachable(t *testing.T) {
	e := newEnv(t, nil)
	e.coord.err = fmt.Errorf("%w: page script not loaded", models.ErrAgentUnreachable)

	code, body := e.do(t, http.MethodPost, "/api/v1/scripts/execute", gin.H{
		"page_id": "p1",
		"actions": []models.Action{models.Wait(1)},
	})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "AgentUnreachable", body.Kind)
}

func TestParseAndFormat(t *testing.T) {
	e := newEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/v1/scripts/parse", gin.H{"script": "click(\"#x\");\nwait(250);"})
	require.Equal(t, http.StatusOK, code)
	var p struct {
		Actions []models.Action `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Equal(t, []models.Action{models.Click("#x"), models.Wait(250)}, p.Actions)

	code, body = e.do(t, http.MethodPost, "/api/v1/scripts/format", gin.H{"actions": p.Actions})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `wait(250);`)

	code, _ = e.do(t, http.MethodPost, "/api/v1/scripts/format", gin.H{"actions": []gin.H{{"type": "hover"}}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNamedScripts(t *testing.T) {
	e := newEnv(t, nil)

	code, _ := e.do(t, http.MethodPut, "/api/v1/scripts/login", gin.H{"actions": []models.Action{models.Click("#go")}})
	require.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodGet, "/api/v1/scripts/login", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `click(\"#go\");`)

	code, _ = e.do(t, http.MethodPost, "/api/v1/scripts/login/execute", gin.H{"page_id": "p1"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, e.coord.executed, 1)
	assert.Equal(t, []models.Action{models.Click("#go")}, e.coord.executed[0])

	code, _ = e.do(t, http.MethodPut, "/api/v1/scripts/junk", gin.H{"text": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodDelete, "/api/v1/scripts/login", nil)
	assert.Equal(t, http.StatusOK, code)
	code, body = e.do(t, http.MethodGet, "/api/v1/scripts/login", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotFound", body.Kind)
}

func TestAutoClicker(t *testing.T) {
	e := newEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/api/v1/autoclicker/start", gin.H{"page_id": "p1", "options": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", body.Kind)

	code, _ = e.do(t, http.MethodPost, "/api/v1/autoclicker/start", gin.H{
		"page_id": "p1",
		"options": gin.H{"target": gin.H{"x": 10, "y": 20}, "radius": 5, "minInterval": 100, "maxInterval": 200, "duration": 1000},
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, e.coord.GetState().AutoClicking)

	code, _ = e.do(t, http.MethodPost, "/api/v1/autoclicker/stop", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/api/v1/autoclicker/stop", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestSelection(t *testing.T) {
	e := newEnv(t, nil)
	code, _ := e.do(t, http.MethodPost, "/api/v1/selection", gin.H{"page_id": "p1", "variant": "coordinate"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/api/v1/selection", gin.H{"page_id": "p1", "variant": "lasso"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSchedules(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.store.Save(context.Background(), "login", `click("#a");`)
	require.NoError(t, err)

	code, body := e.do(t, http.MethodPost, "/api/v1/schedules", gin.H{
		"script_name": "login", "page_id": "p1", "cron_expression": "@hourly",
	})
	require.Equal(t, http.StatusOK, code)
	var sch models.Schedule
	require.NoError(t, json.Unmarshal(body.Data, &sch))

	code, body = e.do(t, http.MethodGet, "/api/v1/schedules", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), sch.ID)

	code, _ = e.do(t, http.MethodDelete, "/api/v1/schedules/"+sch.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodDelete, "/api/v1/schedules/"+sch.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPages(t *testing.T) {
	e := newEnv(t, nil)
	code, body := e.do(t, http.MethodGet, "/api/v1/pages", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `"id":"p1"`)

	code, body = e.do(t, http.MethodPost, "/api/v1/pages", gin.H{"url": "https://example.com/", "device": "iPhone X"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `"id":"p2"`)

	code, _ = e.do(t, http.MethodPost, "/api/v1/pages", gin.H{"url": "https://example.com/", "device": "Nokia 3310"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.do(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `"iPhone X"`)
}

func TestAuth(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	e := newEnv(t, issuer)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := issuer.GenerateToken("test")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/state?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/state", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRequests(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first models.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, models.MsgStateChanged, first.Name)
	require.NotNil(t, first.State)

	require.NoError(t, conn.WriteJSON(models.Request{ID: "42", Action: models.MsgGetState}))
	var resp models.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, models.OutcomeSuccess, resp.Status)
	require.NotNil(t, resp.State)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{bad")))
	resp = models.Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, models.OutcomeError, resp.Status)
	assert.Equal(t, models.KindInvalidRequest, resp.Kind)

	e.hub.Broadcast(models.Event{Name: models.MsgSelectionCancelled, PageID: "p1"})
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.MsgSelectionCancelled, ev.Name)
}

func TestWebSocketRequestsKeepOrder(t *testing.T) {
	e := newEnv(t, nil)
	e.coord.startDelay = 2 * time.Millisecond
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first models.Event
	require.NoError(t, conn.ReadJSON(&first))

	target := models.ElementTarget("#btn", 10, 10)
	const rounds = 20
	for i := 0; i < rounds; i++ {
		require.NoError(t, conn.WriteJSON(models.Request{ID: fmt.Sprintf("rec-start-%d", i), Action: models.MsgStartRecording, PageID: "p1"}))
		require.NoError(t, conn.WriteJSON(models.Request{ID: fmt.Sprintf("rec-stop-%d", i), Action: models.MsgStopRecording}))
		require.NoError(t, conn.WriteJSON(models.Request{
			ID:      fmt.Sprintf("clk-start-%d", i),
			Action:  models.MsgStartAutoClicker,
			PageID:  "p1",
			Options: &models.AutoClickOptions{Target: &target},
		}))
		require.NoError(t, conn.WriteJSON(models.Request{ID: fmt.Sprintf("clk-stop-%d", i), Action: models.MsgStopAutoClicker}))
	}

	var ids []string
	for len(ids) < rounds*4 {
		var resp models.Response
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.ID == "" {
			continue
		}
		assert.Equal(t, models.OutcomeSuccess, resp.Status, "%s: %s %s", resp.ID, resp.Kind, resp.Message)
		ids = append(ids, resp.ID)
	}

	var want []string
	for i := 0; i < rounds; i++ {
		want = append(want,
			fmt.Sprintf("rec-start-%d", i), fmt.Sprintf("rec-stop-%d", i),
			fmt.Sprintf("clk-start-%d", i), fmt.Sprintf("clk-stop-%d", i))
	}
	assert.Equal(t, want, ids)

	st := e.coord.GetState()
	assert.False(t, st.Recording)
	assert.False(t, st.AutoClicking)
}
