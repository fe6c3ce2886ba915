// rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the scoreboard service.
func NewServer(addr string, games *services.GameService) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Scoreboard", NewScoreboardService(games)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpcServer,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ScoreboardService exposes read-only game queries over net/rpc.
type ScoreboardService struct {
	games *services.GameService
}

func NewScoreboardService(games *services.GameService) *ScoreboardService {
	return &ScoreboardService{games: games}
}

type GetArgs struct {
	GameID int64
}

type GetReply struct {
	Scoreboard services.Scoreboard
}

type ListArgs struct{}

type ListReply struct {
	Games []services.GameSummary
}

// Get returns the scoreboard of one game.
func (s *ScoreboardService) Get(args *GetArgs, reply *GetReply) error {
	board, err := s.games.Scoreboard(context.Background(), args.GameID)
	if err != nil {
		return err
	}
	reply.Scoreboard = *board
	return nil
}

// List returns every game, newest first.
func (s *ScoreboardService) List(args *ListArgs, reply *ListReply) error {
	games, err := s.games.List(context.Background())
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}
