package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

const stepTimeout = 2 * time.Minute

// Server exposes one session to observers over HTTP and WebSocket.
type Server struct {
	ctrl    *Controller
	session *Session
	hub     *Hub
	cfg     AppConfig
}

func newServer(ctrl *Controller, session *Session, cfg AppConfig) *Server {
	srv := &Server{ctrl: ctrl, session: session, cfg: cfg}
	srv.hub = newHub(srv.stateMessage)
	return srv
}

// stateMessage renders the current snapshot for a newly connected observer.
func (srv *Server) stateMessage() []byte {
	msg, err := json.Marshal(Envelope{Type: "state", Data: srv.session.Snapshot()})
	if err != nil {
		logError("stateMessage", err)
		return nil
	}
	return msg
}

// broadcastState is the controller's change hook.
func (srv *Server) broadcastState(s *Session) {
	srv.hub.broadcastJSON("state", s.Snapshot())
}

func (srv *Server) routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, compress(disableCaching(handler)))
	}

	handle("GET /api/state", srv.handleState)
	handle("POST /api/game/start", srv.handleStart)
	handle("POST /api/game/next", srv.handleNext)
	handle("POST /api/game/retry", srv.handleRetry)
	handle("POST /api/game/reset", srv.handleReset)
	handle("POST /api/game/clear-error", srv.handleClearError)
	handle("POST /api/game/meeting", srv.handleMeeting)
	handle("GET /api/saves", srv.handleListSaves)
	handle("POST /api/saves", srv.handleSave)
	handle("POST /api/saves/{id}/load", srv.handleLoad)
	handle("DELETE /api/saves/{id}", srv.handleDelete)
	handle("GET /api/roles", srv.handleRoles)
	mux.HandleFunc("GET /ws", srv.handleWebSocket)

	var h http.Handler = mux
	if appLogger != nil && appLogger.logRequests {
		h = &LoggingHandler{Handler: h}
	}
	return h
}

// stepContext detaches a step from the request so a dropped connection cannot abort it halfway.
func stepContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), stepTimeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError("writeJSON", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrEmptySaveName),
		errors.Is(err, ErrInvalidMeeting):
		return http.StatusBadRequest
	case errors.Is(err, ErrSaveNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoActiveGame),
		errors.Is(err, ErrStepInProgress),
		errors.Is(err, ErrPendingRetry),
		errors.Is(err, ErrNothingToRetry),
		errors.Is(err, ErrGameOver):
		return http.StatusConflict
	case errors.Is(err, ErrMalformedResponse),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err to the caller and toasts it to every observer.
func (srv *Server) fail(w http.ResponseWriter, where string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logError(where, err)
	} else {
		DebugLog(where, "%v", err)
	}
	srv.hub.broadcastToast("error", err.Error())
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (srv *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	infos := make(map[Role]RoleInfo, len(AllRoles))
	for _, role := range AllRoles {
		infos[role] = role.Info()
	}
	writeJSON(w, http.StatusOK, infos)
}

func (srv *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg := DefaultGameConfig(srv.cfg.AIAPIKey)
	var req GameConfig
	if err := decodeBody(r, &req); err != nil {
		srv.fail(w, "handleStart", errors.Join(ErrInvalidConfig, err))
		return
	}
	if req.PlayerCount != 0 || len(req.Roles) != 0 {
		cfg.PlayerCount, cfg.Roles = req.PlayerCount, req.Roles
	}
	if req.Credential != "" {
		cfg.Credential = req.Credential
	}

	if err := srv.ctrl.StartGame(r.Context(), srv.session, cfg); err != nil {
		srv.fail(w, "handleStart", err)
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := stepContext(r)
	defer cancel()
	if err := srv.ctrl.ExecuteNextStep(ctx, srv.session); err != nil {
		srv.fail(w, "handleNext", err)
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := stepContext(r)
	defer cancel()
	if err := srv.ctrl.RetryCurrentStep(ctx, srv.session); err != nil {
		srv.fail(w, "handleRetry", err)
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	srv.ctrl.ResetGame(srv.session)
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	srv.ctrl.ClearError(srv.session)
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

type meetingRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (srv *Server) handleMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if err := decodeBody(r, &req); err != nil {
		srv.fail(w, "handleMeeting", errors.Join(ErrInvalidMeeting, err))
		return
	}
	ctx, cancel := stepContext(r)
	defer cancel()
	if err := srv.ctrl.HoldSecretMeeting(ctx, srv.session, req.A, req.B); err != nil {
		srv.fail(w, "handleMeeting", err)
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	saves, err := srv.ctrl.GetSavedGames(r.Context())
	if err != nil {
		srv.fail(w, "handleListSaves", err)
		return
	}
	writeJSON(w, http.StatusOK, saves)
}

type saveRequest struct {
	Name string `json:"name"`
}

func (srv *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		srv.fail(w, "handleSave", errors.Join(ErrEmptySaveName, err))
		return
	}
	id, err := srv.ctrl.SaveGame(r.Context(), srv.session, req.Name)
	if err != nil {
		srv.fail(w, "handleSave", err)
		return
	}
	srv.hub.broadcastToast("success", "Saved "+req.Name)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (srv *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := srv.ctrl.LoadGame(r.Context(), srv.session, r.PathValue("id")); err != nil {
		srv.fail(w, "handleLoad", err)
		return
	}
	writeJSON(w, http.StatusOK, srv.session.Snapshot())
}

func (srv *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := srv.ctrl.DeleteGame(r.Context(), r.PathValue("id")); err != nil {
		srv.fail(w, "handleDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWSMessage runs an observer's command. Failures are toasted back to that observer only.
func (srv *Server) handleWSMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		srv.hub.sendErrorToast(client, "Malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	var err error
	switch msg.Action {
	case "next":
		err = srv.ctrl.ExecuteNextStep(ctx, srv.session)
	case "retry":
		err = srv.ctrl.RetryCurrentStep(ctx, srv.session)
	case "clear_error":
		srv.ctrl.ClearError(srv.session)
	case "reset":
		srv.ctrl.ResetGame(srv.session)
	case "meeting":
		err = srv.ctrl.HoldSecretMeeting(ctx, srv.session, msg.A, msg.B)
	default:
		DebugLog("handleWSMessage", "unknown action %q from %s", msg.Action, client.id)
		srv.hub.sendErrorToast(client, "Unknown action: "+msg.Action)
		return
	}
	if err != nil {
		srv.hub.sendErrorToast(client, err.Error())
	}
}
