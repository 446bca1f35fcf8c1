// cmd/phase10-server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bufordeeds/phase10/engine"
	"github.com/bufordeeds/phase10/internal/auth"
	"github.com/bufordeeds/phase10/internal/cache"
	"github.com/bufordeeds/phase10/internal/config"
	"github.com/bufordeeds/phase10/internal/database"
	"github.com/bufordeeds/phase10/internal/game"
	"github.com/bufordeeds/phase10/internal/models"
)

// server owns the live game instances and their connection fan-out.
type server struct {
	cfg config.Config

	mu    sync.Mutex
	games map[uuid.UUID]*game.Phase10Game
	subs  map[uuid.UUID]*redis.PubSub
}

func newServer(cfg config.Config) *server {
	return &server{
		cfg:   cfg,
		games: make(map[uuid.UUID]*game.Phase10Game),
		subs:  make(map[uuid.UUID]*redis.PubSub),
	}
}

// getOrCreateGame returns the live game for an id, creating it on first use.
func (s *server) getOrCreateGame(id uuid.UUID) *game.Phase10Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		return g
	}
	g := game.NewPhase10Game(uint64(time.Now().UnixNano()))
	g.ID = id
	hr := models.DefaultHouseRules()
	hr.TurnTimeoutSec = s.cfg.TurnTimeoutSec
	g.SetHouseRules(hr)
	if database.DB != nil {
		store := game.PostgresStore{}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := store.Load(ctx, id); errors.Is(err, database.ErrSessionNotFound) {
			if err := store.Create(ctx, id, uuid.Nil, "lobby", []byte("{}")); err != nil {
				logrus.WithError(err).WithField("game", id).Error("failed creating session row")
			}
		}
		g.Store = store
	}
	g.BroadcastFn = func(ev game.GameEvent) { s.broadcast(g, ev) }
	g.BroadcastToPlayerFn = func(playerID uuid.UUID, ev game.GameEvent) { s.broadcastToPlayer(g, playerID, ev) }
	g.OnGameEnd = func(lobbyID, winner uuid.UUID, scores map[uuid.UUID]int) {
		logrus.WithFields(logrus.Fields{
			"game":   g.ID,
			"winner": winner,
			"scores": scores,
		}).Info("game ended")
		go s.evictGame(g.ID)
	}
	s.games[id] = g
	if cache.Rdb != nil {
		sub := cache.SubscribeSession(context.Background(), id)
		s.subs[id] = sub
		go s.watchSession(g, sub)
	}
	return g
}

// evictGame drops a finished session and closes its update subscription.
// Players still draining their connections keep a reference to the game
// object itself, which stays valid after eviction.
func (s *server) evictGame(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.Close()
		delete(s.subs, id)
	}
	delete(s.games, id)
}

// watchSession follows the session's pub/sub channel and flags commits made
// by another process. The local game instance is the writer for its own
// actions, so a version ahead of ours means an external writer raced us and
// the stored snapshot should be treated as authoritative. The loop exits
// when evictGame closes the subscription.
func (s *server) watchSession(g *game.Phase10Game, sub *redis.PubSub) {
	defer sub.Close()
	for msg := range sub.Channel() {
		var upd cache.SessionUpdate
		if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
			logrus.WithError(err).Debug("bad session update payload")
			continue
		}
		g.Mu.Lock()
		local := g.Version
		g.Mu.Unlock()
		if upd.Version > local {
			logrus.WithFields(logrus.Fields{
				"game":          g.ID,
				"localVersion":  local,
				"remoteVersion": upd.Version,
			}).Warn("session advanced by external writer")
		}
	}
}

// broadcast writes an event to every connected player of a game. Callers
// hold the game lock, so the write deadline stays short to keep a stalled
// client from blocking the session.
func (s *server) broadcast(g *game.Phase10Game, ev game.GameEvent) {
	for _, p := range g.Players {
		if p.Connected && p.Conn != nil {
			writeEvent(p.Conn, ev)
		}
	}
}

func (s *server) broadcastToPlayer(g *game.Phase10Game, playerID uuid.UUID, ev game.GameEvent) {
	for _, p := range g.Players {
		if p.ID == playerID && p.Connected && p.Conn != nil {
			writeEvent(p.Conn, ev)
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev game.GameEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		logrus.WithError(err).Debug("websocket write failed")
	}
}

// authUserID resolves the requesting user from the bearer token or the
// auth_token query parameter (for browser WebSocket clients).
func (s *server) authUserID(r *http.Request) (uuid.UUID, error) {
	token := r.URL.Query().Get("auth_token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return uuid.Nil, auth.ErrInvalidToken
	}
	return auth.ParseToken(s.cfg.JWTSecret, token)
}

// handleGameWS upgrades the connection and runs the per-player read loop.
func (s *server) handleGameWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin checks are handled by the proxy layer.
	})
	if err != nil {
		logrus.WithError(err).Warn("websocket accept failed")
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		username = "anonymous"
	}
	if database.DB != nil {
		if u, err := database.GetUserByID(r.Context(), userID); err == nil {
			username = u.Username
		}
	}

	g := s.getOrCreateGame(gameID)

	// A custom phase ladder can be attached while the game is still in the
	// lobby; SetPhaseSet ignores the call once the session is live.
	if ref := r.URL.Query().Get("phase_set"); ref != "" && database.DB != nil {
		if setID, err := uuid.Parse(ref); err == nil {
			if rec, err := database.LoadPhaseSet(r.Context(), setID); err == nil {
				var phases engine.PhaseSet
				if err := json.Unmarshal(rec.Phases, &phases); err == nil {
					g.SetPhaseSet(phases)
				}
			}
		}
	}

	player := &models.Player{
		ID:        userID,
		User:      models.User{ID: userID, Username: username},
		Conn:      conn,
		Connected: true,
	}

	g.Mu.Lock()
	g.AddPlayer(player)
	if g.Started {
		g.HandleReconnect(userID, conn)
	}
	g.Mu.Unlock()

	logrus.WithFields(logrus.Fields{"game": gameID, "user": userID}).Info("player connected")
	s.readLoop(r.Context(), g, userID, conn)
}

// readLoop decodes client actions until the connection drops.
func (s *server) readLoop(ctx context.Context, g *game.Phase10Game, userID uuid.UUID, conn *websocket.Conn) {
	defer func() {
		g.Mu.Lock()
		g.HandleDisconnect(userID)
		g.Mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var action models.GameAction
		if err := wsjson.Read(ctx, conn, &action); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return
			}
			logrus.WithError(err).Debug("websocket read failed")
			return
		}

		switch action.ActionType {
		case "action_start":
			g.Start()
		default:
			g.Mu.Lock()
			g.HandlePlayerAction(userID, action)
			g.Mu.Unlock()
		}
	}
}

// handleLogin exchanges credentials for a session token.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := database.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := auth.CreateToken(s.cfg.JWTSecret, user.ID)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token, "userId": user.ID.String()})
}

// handleRegister creates a user account.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}
	user, err := database.CreateUser(r.Context(), req.Username, req.Email, hash)
	if err != nil {
		http.Error(w, "could not create user", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"userId": user.ID.String()})
}

// handleGameInfo returns the persisted session record without joining it.
func (s *server) handleGameInfo(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}
	sess, err := game.LoadSessionRecord(r.Context(), game.PostgresStore{}, id)
	if errors.Is(err, database.ErrSessionNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      sess.ID,
		"status":  sess.Status,
		"version": sess.Version,
	})
}

// handleSavePhaseSet stores a custom phase ladder for the requesting user.
// The body is validated by decoding into the engine's phase representation,
// so only ladders the matcher can actually play are persisted.
func (s *server) handleSavePhaseSet(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	userID, err := s.authUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Name   string          `json:"name"`
		Phases engine.PhaseSet `json:"phases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || len(req.Phases) == 0 {
		http.Error(w, "invalid phase set", http.StatusBadRequest)
		return
	}
	phases, err := json.Marshal(req.Phases)
	if err != nil {
		http.Error(w, "invalid phase set", http.StatusBadRequest)
		return
	}
	rec, err := database.SavePhaseSet(r.Context(), userID, req.Name, phases)
	if err != nil {
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": rec.ID.String()})
}

// handleGetPhaseSet fetches a stored phase ladder by id.
func (s *server) handleGetPhaseSet(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid phase set id", http.StatusBadRequest)
		return
	}
	rec, err := database.LoadPhaseSet(r.Context(), id)
	if errors.Is(err, database.ErrPhaseSetNotFound) {
		http.Error(w, "phase set not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     rec.ID,
		"name":   rec.Name,
		"phases": json.RawMessage(rec.Phases),
	})
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL != "" {
		if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
			logrus.WithError(err).Fatal("database connection failed")
		}
		defer database.Close()
	}
	if cfg.RedisAddr != "" {
		if err := cache.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
			logrus.WithError(err).Fatal("redis connection failed")
		}
		defer cache.Close()
	}

	s := newServer(cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /game/{id}", s.handleGameInfo)
	mux.HandleFunc("GET /game/{id}/ws", s.handleGameWS)
	mux.HandleFunc("POST /phasesets", s.handleSavePhaseSet)
	mux.HandleFunc("GET /phasesets/{id}", s.handleGetPhaseSet)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("shutdown incomplete")
	}
}
