package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/recorder"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

func nopFactory(c action.Configuration, env service.Environment) (action.Controller, error) {
	return recorder.New(recorder.Options{
		Configuration:   c,
		OutputDirectory: env.OutputDirectory,
		InitialStepPath: env.InitialStepPath,
		Driver:          recorder.NopDriver{},
		Permissions:     env.Permissions,
		Delegate:        env.Delegate,
		Logger:          env.Logger,
	}), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	cfg := &config.Config{
		Name:    "walk",
		Section: "walk",
		Steps:   []string{"instructions", "active", "rest"},
		Output:  config.OutputConfig{Directory: t.TempDir()},
		Recorders: []config.RecorderDefinition{
			{ID: "motion", Type: "motion", StartStepIdentifier: "active"},
		},
		Configurations: []action.Configuration{
			action.MotionConfiguration{Common: action.Common{ID: "motion", StartStep: "active"}},
		},
	}
	db, err := store.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	svc := service.New(cfg, "", service.Options{
		Store:       db,
		Sink:        hub,
		Factory:     nopFactory,
		Permissions: permission.NewRegistry(permission.GrantAll(permission.Motion)),
		Sources:     func(*config.Config) service.Sources { return service.Sources{} },
	})
	ts := httptest.NewServer(New(svc, hub, "", "127.0.0.1:0", nil).Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func postForm(t *testing.T, ts *httptest.Server, path string, values url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.PostForm(ts.URL+path, values)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func getJSON(t *testing.T, ts *httptest.Server, path string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func TestSessionEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var status StatusResponse
	getJSON(t, ts, "/status", &status)
	assert.Equal(t, "STANDBY", status.Status)
	assert.Equal(t, "walk", status.ActiveProfile)
	require.NotNil(t, status.Config)
	assert.Len(t, status.Config.Recorders, 1)

	resp, body := postForm(t, ts, "/session/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	session := body["session"].(map[string]any)
	id := session["id"].(string)

	resp, _ = postForm(t, ts, "/session/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = postForm(t, ts, "/session/step", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["step"])

	resp, _ = postForm(t, ts, "/session/step", url.Values{"step": {"cooldown"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getJSON(t, ts, "/status", &status)
	assert.Equal(t, "RUNNING", status.Status)
	assert.Equal(t, "Session running - active", status.Message)

	resp, body = postForm(t, ts, "/session/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	results := body["results"].(map[string]any)
	assert.Len(t, results["children"], 1)

	resp, _ = postForm(t, ts, "/session/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var sessions struct {
		Sessions []store.Session `json:"sessions"`
	}
	getJSON(t, ts, "/api/sessions", &sessions)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, id, sessions.Sessions[0].ID)
	assert.Equal(t, "finished", sessions.Sessions[0].Status)

	var res struct {
		Results []store.Result `json:"results"`
	}
	getJSON(t, ts, "/api/sessions/"+id+"/results", &res)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "motion", res.Results[0].Recorder)

	var events struct {
		Events []observe.Event `json:"events"`
	}
	getJSON(t, ts, "/api/sessions/"+id+"/events", &events)
	assert.NotEmpty(t, events.Events)

	var missing GenericResponse
	resp = getJSON(t, ts, "/api/sessions/nope", &missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, missing.Success)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/session/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCancelWithoutSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := postForm(t, ts, "/session/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestArchiveDownloadRejectsTraversal(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/archives/" + url.PathEscape("..%2Fsecret"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/archives/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubStreamsEvents(t *testing.T) {
	ts, hub := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=s1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Emit(ctx, observe.Event{SessionID: "s2", Kind: observe.KindStatus, Recorder: "other"}))
	require.NoError(t, hub.Emit(ctx, observe.Event{SessionID: "s1", Kind: observe.KindStep, Recorder: "motion", StepPath: "walk/active"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got observe.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "s1", got.SessionID, "events of other sessions are filtered")
	assert.Equal(t, "walk/active", got.StepPath)
}
