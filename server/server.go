package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/skullscore/broadcast"
	"github.com/wfunc/skullscore/cache"
	"github.com/wfunc/skullscore/config"
	"github.com/wfunc/skullscore/handlers"
	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/monitor"
	"github.com/wfunc/skullscore/network"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/routes"
	skullscore_rpc "github.com/wfunc/skullscore/rpc"
	"github.com/wfunc/skullscore/scoring"
	"github.com/wfunc/skullscore/services"
	"github.com/wfunc/skullscore/session"
	"github.com/wfunc/skullscore/table"
	"github.com/wfunc/skullscore/timer"
)

const (
	heartbeatInterval = 30 * time.Second
	storePingInterval = 15 * time.Second
	storePingTimeout  = 2 * time.Second
	reapInterval      = time.Minute
)

// GameServer wires the HTTP API, the websocket feed, net/rpc and the gRPC
// health service around one store.
type GameServer struct {
	cfg            *config.Config
	store          persistence.Store
	upgrader       websocket.Upgrader
	tableManager   *table.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.TableBroadcaster
	monitor        *monitor.Monitor
	scheduler      *timer.Scheduler
	games          *services.GameService
	router         *gin.Engine
	httpServer     *http.Server
	rpcServer      *skullscore_rpc.Server
	healthServer   *skullscore_rpc.HealthServer
	healthCancel   context.CancelFunc
	timers         []int64
	mutex          sync.Mutex
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(cfg *config.Config, store persistence.Store, scoreCache cache.Cache) (*GameServer, error) {
	s := &GameServer{
		cfg:            cfg,
		store:          store,
		tableManager:   table.NewManager(),
		sessionManager: session.NewManager(),
		monitor:        monitor.NewMonitor("skullscore"),
		scheduler:      timer.NewScheduler(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.tableManager.OnChange(s.monitor.SetActiveTables)

	// 初始化广播器
	s.broadcaster = broadcast.NewTableBroadcaster(s.tableManager, s.sessionManager)
	publisher := services.Publishers(s.broadcaster, s.monitor, services.PublisherFunc(logEvent))

	collator := scoring.NewCollator(cfg.Rules.Locale)
	groups := services.NewGroupService(store)
	players := services.NewPlayerService(store, groups, collator, publisher)
	s.games = services.NewGameService(store, scoreCache, collator, publisher, services.Rules{
		MinPlayers: cfg.Rules.MinPlayers,
		MaxPlayers: cfg.Rules.MaxPlayers,
	})

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	routes.SetupRoutes(s.router, routes.Dependencies{
		Players:   handlers.NewPlayerHandler(players, groups),
		Games:     handlers.NewGameHandler(s.games, s.tableManager),
		Store:     store,
		Monitor:   s.monitor,
		WebSocket: s.handleWebSocket,
	})
	s.httpServer = &http.Server{Addr: cfg.Server.HTTPAddress, Handler: s.router}

	// 初始化RPC服务器
	rpcServer, err := skullscore_rpc.NewServer(cfg.Server.RPCAddress, s.games)
	if err != nil {
		s.closeLocal()
		return nil, err
	}
	s.rpcServer = rpcServer

	if cfg.Server.GRPCAddress != "" {
		healthServer, err := skullscore_rpc.NewHealthServer(cfg.Server.GRPCAddress)
		if err != nil {
			rpcServer.Stop()
			s.closeLocal()
			return nil, err
		}
		s.healthServer = healthServer
	}
	return s, nil
}

// Handler exposes the router, e.g. for httptest servers.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

// RPCAddr returns the bound net/rpc address.
func (s *GameServer) RPCAddr() string {
	return s.rpcServer.Addr()
}

// Start runs the background services and blocks serving HTTP.
func (s *GameServer) Start() error {
	s.startBackground()
	logger.Log.Infof("HTTP server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) startBackground() {
	go s.rpcServer.Start()

	if s.healthServer != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.mutex.Lock()
		s.healthCancel = cancel
		s.mutex.Unlock()
		go func() {
			if err := s.healthServer.Serve(ctx); err != nil {
				logger.Log.Errorf("gRPC health server: %v", err)
			}
		}()
	}

	if s.cfg.Server.MetricsAddress != "" {
		s.monitor.StartServer(s.cfg.Server.MetricsAddress)
	}

	s.pingStore()
	timers := []int64{s.scheduler.Every(storePingInterval, s.pingStore)}
	if s.cfg.Table.IdleTimeout > 0 {
		timers = append(timers, s.tableManager.StartReaper(s.scheduler, reapInterval, s.cfg.Table.IdleTimeout))
	}
	s.mutex.Lock()
	s.timers = timers
	s.mutex.Unlock()
}

// stopTimers 取消探活和回收定时任务
func (s *GameServer) stopTimers() {
	s.mutex.Lock()
	timers := s.timers
	s.timers = nil
	s.mutex.Unlock()

	for _, id := range timers {
		s.scheduler.RemoveTimer(id)
	}
}

func logEvent(event services.Event) {
	logger.Log.Debugf("event %s game=%d players=%v", event.Type, event.GameID, event.PlayerIDs)
}

// pingStore pings the store and reports the outcome to health and metrics.
func (s *GameServer) pingStore() {
	ctx, cancel := context.WithTimeout(context.Background(), storePingTimeout)
	defer cancel()

	err := s.store.Ping(ctx)
	if err != nil {
		logger.Log.Warnf("store ping failed: %v", err)
	}
	s.monitor.SetStoreUp(err == nil)
	if s.healthServer != nil {
		s.healthServer.SetServing(err == nil)
	}
}

// Shutdown stops accepting work and drains what is in flight.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.stopTimers()
		err = s.httpServer.Shutdown(ctx)

		s.mutex.Lock()
		cancel := s.healthCancel
		s.mutex.Unlock()
		if cancel != nil {
			cancel()
		} else if s.healthServer != nil {
			s.healthServer.Stop()
		}

		s.rpcServer.Stop()
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		s.closeLocal()
		s.monitor.Stop()
	})
	return err
}

func (s *GameServer) closeLocal() {
	s.scheduler.Stop()
	s.broadcaster.Close()
	s.tableManager.Close()
}

func (s *GameServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineViewers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.tableManager.UnwatchAll(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineViewers()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		packet, err := wsConn.ReadPacket()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Infof("Read error on session %s: %v", sess.GetID(), err)
			}
			return
		}

		start := time.Now()
		sess.Touch()
		s.monitor.IncMessagesReceived()
		s.handlePacket(sess, packet)
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeWatch:
		s.handleWatch(sess, packet)
	case network.MsgTypeUnwatch:
		s.handleUnwatch(sess, packet)
	default:
		logger.Log.Warnf("Unknown message ID %d from session %s", packet.MsgID, sess.GetID())
	}
}

// handleWatch attaches the session to a game and sends the current scoreboard.
func (s *GameServer) handleWatch(sess *session.Session, packet *network.Packet) {
	var req network.WatchRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.GameID <= 0 {
		s.sendError(sess, 0, string(services.CodeRequired), "game_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storePingTimeout)
	defer cancel()
	// 快照和加入观战都在牌桌内完成，与该局的命令和事件保持顺序
	err := s.tableManager.Do(ctx, req.GameID, func(ctx context.Context) error {
		board, err := s.games.Scoreboard(ctx, req.GameID)
		if err != nil {
			return err
		}
		s.tableManager.Watch(req.GameID, sess)
		data, err := json.Marshal(services.Event{Type: services.EventSnapshot, GameID: req.GameID, Scoreboard: board})
		if err != nil {
			logger.Log.Errorf("encode snapshot of game %d: %v", req.GameID, err)
			return nil
		}
		if err := sess.Send(network.MsgTypeScoreboard, data); err != nil {
			logger.Log.Debugf("send snapshot to session %s failed: %v", sess.GetID(), err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			s.sendError(sess, req.GameID, "not_found", "game not found")
			return
		}
		logger.Log.Errorf("Watch game %d for session %s: %v", req.GameID, sess.GetID(), err)
		s.sendError(sess, req.GameID, "internal", "scoreboard unavailable")
		return
	}
	logger.Log.Infof("Session %s watching game %d", sess.GetID(), req.GameID)
}

func (s *GameServer) handleUnwatch(sess *session.Session, packet *network.Packet) {
	var req network.WatchRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, 0, string(services.CodeRequired), "game_id is required")
		return
	}
	s.tableManager.Unwatch(req.GameID, sess)
}

func (s *GameServer) sendError(sess *session.Session, gameID int64, code, message string) {
	data, _ := json.Marshal(network.ErrorMessage{GameID: gameID, Code: code, Error: message})
	if err := sess.Send(network.MsgTypeError, data); err != nil {
		logger.Log.Debugf("send error to session %s failed: %v", sess.GetID(), err)
	}
}
