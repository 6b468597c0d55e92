package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"robofleet/config"
	"robofleet/engine"
	"robofleet/hub"
	"robofleet/metrics"
	"robofleet/store"
)

// Close codes sent when a connection is refused after the upgrade.
const (
	CloseRobotUnavailable = 4001
	CloseProfileNotFound  = 4004
)

const maxInboundBytes = 64 << 10

// Connection kinds, used as the metrics label.
const (
	kindInspection    = "inspection"
	kindEmergencyStop = "emergency_stop"
	kindRobotGroup    = "robot_message_group"
	kindRobot         = "robot_message"
	kindProfile       = "robot_profile"
)

type robotLookup struct {
	robot   *store.Robot
	fetched time.Time
}

// Gateway binds each websocket connection to one hub group.
type Gateway struct {
	db       *store.DB
	hub      *hub.Hub
	cfg      config.WebConfig
	metrics  *metrics.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
	robots   *lru.Cache[string, robotLookup]
	cacheTTL time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(eng *engine.Engine, logger *zap.Logger) *Gateway {
	cfg := eng.AppConfig().Web
	size := cfg.RobotCache
	if size <= 0 {
		size = 256
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, robotLookup](size)
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		db:      eng.DB(),
		hub:     eng.Hub(),
		cfg:     cfg,
		metrics: eng.Metrics(),
		log:     logger.Named("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		robots:   cache,
		cacheTTL: 30 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		g.robots.Remove(evt.Payload.(engine.RobotEvent).Robot.RoboID)
	}, engine.EventRobotActiveChanged)
	return g
}

// Close ends every open connection with a going-away frame and waits for
// their goroutines.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.cancel()
	g.mu.Unlock()
	g.wg.Wait()
}

// activeRobot resolves roboID through the cache. Only active robots are
// cached, so a deactivation is seen at the next lookup after invalidation.
func (g *Gateway) activeRobot(ctx context.Context, roboID string) (*store.Robot, bool) {
	if e, ok := g.robots.Get(roboID); ok && time.Since(e.fetched) < g.cacheTTL {
		return e.robot, true
	}
	r, err := g.db.GetRobotByRoboID(ctx, roboID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.log.Error("gateway: robot lookup", zap.String("robo_id", roboID), zap.Error(err))
		}
		g.robots.Remove(roboID)
		return nil, false
	}
	if !r.IsActive {
		g.robots.Remove(roboID)
		return nil, false
	}
	g.robots.Add(roboID, robotLookup{robot: r, fetched: time.Now()})
	return r, true
}

// --- Endpoints ---

func (g *Gateway) handleInspection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleId")
	scheduleID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	conn, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	g.serve(conn, session{
		kind:    kindInspection,
		group:   hub.ScheduleGroup(scheduleID),
		confirm: map[string]any{"type": "connection", "message": fmt.Sprintf("Connected to schedule %d", scheduleID)},
	})
}

func (g *Gateway) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	conn, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	g.serve(conn, session{
		kind:    kindEmergencyStop,
		group:   hub.EmergencyStopGroup,
		confirm: map[string]any{"event": "connected", "message": "Connected to Emergency Stop channel"},
	})
}

func (g *Gateway) handleRobotMessageGroup(w http.ResponseWriter, r *http.Request) {
	conn, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	g.serve(conn, session{
		kind:          kindRobotGroup,
		group:         hub.RobotMessageGroup,
		confirm:       map[string]any{"event": "connected", "message": "WebSocket connected"},
		bidirectional: true,
	})
}

func (g *Gateway) handleRobotMessage(w http.ResponseWriter, r *http.Request) {
	roboID := chi.URLParam(r, "roboId")
	conn, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	if _, ok := g.activeRobot(r.Context(), roboID); !ok {
		g.refuse(conn, CloseRobotUnavailable, "robot not found or inactive")
		return
	}
	g.serve(conn, session{
		kind:          kindRobot,
		group:         hub.RobotGroup(roboID),
		confirm:       map[string]any{"event": "connected", "robot": roboID, "message": "WebSocket connected"},
		bidirectional: true,
	})
}

func (g *Gateway) handleRobotProfile(w http.ResponseWriter, r *http.Request) {
	roboID := chi.URLParam(r, "roboId")
	profileID, perr := strconv.ParseInt(chi.URLParam(r, "profileId"), 10, 64)
	conn, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	robot, ok := g.activeRobot(r.Context(), roboID)
	if !ok {
		g.refuse(conn, CloseRobotUnavailable, "robot not found or inactive")
		return
	}
	if perr != nil {
		g.refuse(conn, CloseProfileNotFound, "profile not found")
		return
	}
	p, err := g.db.GetProfile(r.Context(), profileID)
	if err != nil || p.RobotID != robot.ID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			g.log.Error("gateway: profile lookup", zap.Int64("profile_id", profileID), zap.Error(err))
		}
		g.refuse(conn, CloseProfileNotFound, "profile not found")
		return
	}
	g.serve(conn, session{
		kind:  kindProfile,
		group: hub.ProfileGroup(roboID, profileID),
		confirm: map[string]any{
			"event":      "connected",
			"robot":      roboID,
			"profile_id": profileID,
			"message":    "WebSocket connected",
		},
	})
}

// --- Connection lifecycle ---

type session struct {
	kind          string
	group         string
	confirm       any
	bidirectional bool
}

func (g *Gateway) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.log.Debug("gateway: upgrade failed", zap.String("path", r.URL.Path), zap.Error(err))
		return nil, false
	}
	return conn, true
}

// refuse closes an accepted connection with an application close code.
func (g *Gateway) refuse(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.writeWait()))
	conn.Close()
}

// serve joins the group, writes the confirmation and pumps frames until
// either side goes away. Joining first means nothing published after the
// confirmation is missed; the confirmation is written before the queue is
// drained so it is always the first frame.
func (g *Gateway) serve(conn *websocket.Conn, s session) {
	g.mu.Lock()
	if g.ctx.Err() != nil {
		g.mu.Unlock()
		g.refuse(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	sub := g.hub.Join(s.group)
	defer g.hub.Leave(sub)
	g.metrics.ConnOpened(s.kind)
	defer g.metrics.ConnClosed(s.kind)

	log := g.log.With(zap.String("kind", s.kind), zap.String("group", s.group), zap.String("conn", sub.ID))
	log.Debug("gateway: connected")
	defer log.Debug("gateway: disconnected")

	confirm, err := json.Marshal(s.confirm)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetWriteDeadline(time.Now().Add(g.writeWait()))
	if err := conn.WriteMessage(websocket.TextMessage, confirm); err != nil {
		conn.Close()
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		g.readPump(conn, sub, s, log)
	}()
	g.writePump(conn, sub, readDone, log)
	<-readDone
}

func (g *Gateway) writePump(conn *websocket.Conn, sub *hub.Subscriber, readDone <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(g.pingInterval())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(g.writeWait()))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("gateway: write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.writeWait())); err != nil {
				return
			}
		case <-readDone:
			return
		case <-sub.Done():
			return
		case <-g.ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.writeWait()))
			return
		}
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readPump keeps the read deadline fresh and, on bidirectional channels,
// answers ping and relays every other event to the whole group, sender
// included. Excess inbound traffic is dropped by the rate limiter.
func (g *Gateway) readPump(conn *websocket.Conn, sub *hub.Subscriber, s session, log *zap.Logger) {
	conn.SetReadLimit(maxInboundBytes)
	conn.SetReadDeadline(time.Now().Add(g.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.pongWait()))
	})
	limiter := rate.NewLimiter(rate.Limit(g.inboundRate()), g.inboundBurst())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("gateway: read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(g.pongWait()))
		if !s.bidirectional {
			continue
		}
		if !limiter.Allow() {
			log.Debug("gateway: inbound rate exceeded, message dropped")
			continue
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil || strings.TrimSpace(in.Event) == "" {
			log.Debug("gateway: malformed inbound message dropped")
			continue
		}
		if in.Event == "ping" {
			sub.Send(pongFrame)
			continue
		}
		data := in.Data
		if len(data) == 0 || string(data) == "null" {
			data = json.RawMessage(`{}`)
		} else if _, ok := objectPayload(data); !ok {
			log.Debug("gateway: inbound data is not an object, dropped", zap.String("event", in.Event))
			continue
		}
		frame, err := json.Marshal(hub.Frame{Event: in.Event, Data: data})
		if err != nil {
			continue
		}
		g.hub.PublishRaw(g.ctx, s.group, frame)
	}
}

var pongFrame = []byte(`{"event":"pong"}`)

func (g *Gateway) pingInterval() time.Duration {
	if g.cfg.PingInterval > 0 {
		return g.cfg.PingInterval
	}
	return 25 * time.Second
}

func (g *Gateway) pongWait() time.Duration {
	if g.cfg.PongWait > 0 {
		return g.cfg.PongWait
	}
	return 60 * time.Second
}

func (g *Gateway) writeWait() time.Duration {
	if g.cfg.WriteWait > 0 {
		return g.cfg.WriteWait
	}
	return 10 * time.Second
}

func (g *Gateway) inboundRate() float64 {
	if g.cfg.InboundRate > 0 {
		return g.cfg.InboundRate
	}
	return 20
}

func (g *Gateway) inboundBurst() int {
	if g.cfg.InboundBurst > 0 {
		return g.cfg.InboundBurst
	}
	return 40
}
