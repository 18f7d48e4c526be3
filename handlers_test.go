package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer is a TestContext served over HTTP, with the hub running.
type testServer struct {
	*TestContext
	srv     *Server
	baseURL string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := newTestContext(t)
	srv := newServer(ctx.ctrl, ctx.session, AppConfig{AIAPIKey: "test-key"})
	ctx.ctrl.onChange = srv.broadcastState

	srv.hub.start()
	t.Cleanup(srv.hub.stop)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return &testServer{TestContext: ctx, srv: srv, baseURL: ts.URL}
}

// do sends a JSON request and returns the status and raw body.
func (ts *testServer) do(method, path string, body any) (*http.Response, []byte) {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.baseURL+path, r)
	require.NoError(ts.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, data
}

// snapshot decodes a Snapshot response body.
func (ts *testServer) snapshot(data []byte) Snapshot {
	ts.t.Helper()
	var snap Snapshot
	require.NoError(ts.t, json.Unmarshal(data, &snap), string(data))
	return snap
}

func (ts *testServer) errorOf(data []byte) string {
	ts.t.Helper()
	var body map[string]string
	require.NoError(ts.t, json.Unmarshal(data, &body), string(data))
	return body["error"]
}

// ============================================================================
// Game endpoints
// ============================================================================

func TestHTTPStartAndStep(t *testing.T) {
	ts := newTestServer(t)
	ts.logger.Debug("=== Testing start and next over HTTP ===")

	resp, data := ts.do("POST", "/api/game/start", GameConfig{
		PlayerCount: 4,
		Roles:       []Role{RoleMarked, RoleGuard, RoleInnocent, RoleInnocent},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	snap := ts.snapshot(data)
	require.NotNil(t, snap.State)
	assert.Equal(t, PhasePrologue, snap.State.Phase)
	assert.Len(t, snap.State.Players, 4)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.True(t, resp.Uncompressed, "JSON responses are gzipped")

	resp, data = ts.do("POST", "/api/game/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, PhaseNight, ts.snapshot(data).State.Phase)

	resp, data = ts.do("GET", "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ts.snapshot(data).State.Round)
	ts.logger.Debug("=== Test passed ===")
}

func TestHTTPStartDefaultsToStandardRoster(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do("POST", "/api/game/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Len(t, ts.snapshot(data).State.Players, len(DefaultRoles))
}

func TestHTTPStartRejectsBadConfig(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do("POST", "/api/game/start", GameConfig{PlayerCount: 3, Roles: []Role{RoleMarked}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, ts.errorOf(data), "role count")

	ts.ctrl.validator = stubValidator(false)
	resp, _ = ts.do("POST", "/api/game/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, ts.session.Snapshot().State)
}

func TestHTTPStepErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do("POST", "/api/game/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no game yet")

	ts.start(RoleMarked, RoleGuard, RoleInnocent, RoleInnocent)
	ts.mustStep()

	ts.agent.failNext(1)
	resp, data := ts.do("POST", "/api/game/next", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, ts.errorOf(data), errUpstream.Error())

	resp, _ = ts.do("POST", "/api/game/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "pending retry")

	resp, data = ts.do("GET", "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, ts.snapshot(data).LastError)

	resp, data = ts.do("POST", "/api/game/retry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Empty(t, ts.snapshot(data).LastError)

	resp, _ = ts.do("POST", "/api/game/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing to retry")

	// Guard is done; this step opens the marked's discussion without asking anyone.
	resp, _ = ts.do("POST", "/api/game/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ts.agent.reply = func(Turn) (string, error) { return "", nil }
	resp, _ = ts.do("POST", "/api/game/next", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, data = ts.do("POST", "/api/game/clear-error", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, ts.snapshot(data).LastError)

	resp, data = ts.do("POST", "/api/game/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, ts.snapshot(data).State)
}

func TestHTTPMeeting(t *testing.T) {
	ts := newTestServer(t)
	ts.setState(meetingState(PhaseDay, NightNone, 0))

	resp, _ := ts.do("POST", "/api/game/meeting", meetingRequest{A: "P1", B: "P1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := ts.do("POST", "/api/game/meeting", meetingRequest{A: "P1", B: "P2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.True(t, ts.snapshot(data).State.MeetingHeld)
}

func TestHTTPRoles(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do("GET", "/api/roles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var roles map[Role]RoleInfo
	require.NoError(t, json.Unmarshal(data, &roles))
	assert.Len(t, roles, len(AllRoles))
	assert.Equal(t, FactionHarvest, roles[RoleHeretic].Faction)
}

// ============================================================================
// Save endpoints
// ============================================================================

func TestHTTPSaves(t *testing.T) {
	ts := newTestServer(t)
	ts.logger.Debug("=== Testing save slots over HTTP ===")
	ts.start(RoleMarked, RoleGuard, RoleInnocent, RoleInnocent)

	resp, _ := ts.do("POST", "/api/saves", saveRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty name")

	resp, data := ts.do("POST", "/api/saves", saveRequest{Name: "prologue"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created map[string]string
	require.NoError(t, json.Unmarshal(data, &created))
	id := created["id"]
	require.NotEmpty(t, id)

	resp, data = ts.do("GET", "/api/saves", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saves []SavedGame
	require.NoError(t, json.Unmarshal(data, &saves))
	require.Len(t, saves, 1)
	assert.Equal(t, "prologue", saves[0].Name)

	ts.mustStep()
	resp, data = ts.do("POST", fmt.Sprintf("/api/saves/%s/load", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, PhasePrologue, ts.snapshot(data).State.Phase)

	resp, _ = ts.do("POST", "/api/saves/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do("DELETE", "/api/saves/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do("DELETE", "/api/saves/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	ts.logDB("after HTTP saves")
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		ErrInvalidConfig:                             http.StatusBadRequest,
		fmt.Errorf("wrapped: %w", ErrInvalidMeeting): http.StatusBadRequest,
		ErrSaveNotFound:                              http.StatusNotFound,
		ErrStepInProgress:                            http.StatusConflict,
		ErrGameOver:                                  http.StatusConflict,
		ErrMalformedResponse:                         http.StatusBadGateway,
		context.DeadlineExceeded:                     http.StatusBadGateway,
		errors.New("disk on fire"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
