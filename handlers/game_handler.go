// handlers/game_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/services"
	"github.com/wfunc/skullscore/table"
)

type GameHandler struct {
	games  *services.GameService
	tables *table.Manager
}

func NewGameHandler(games *services.GameService, tables *table.Manager) *GameHandler {
	return &GameHandler{games: games, tables: tables}
}

type CreateGameRequest struct {
	PlayerIDs []int64 `json:"player_ids"`
}

type DeclarationsRequest struct {
	Declarations []services.Declaration `json:"declarations"`
}

type ResultsRequest struct {
	Results []services.ResultEntry `json:"results"`
}

type BonusRequest struct {
	Claims []services.BonusClaim `json:"claims"`
}

// mutate runs a game command on the game's table so that commands on one
// game never interleave.
func (h *GameHandler) mutate(c *gin.Context, status int, fn func(ctx context.Context, gameID int64) (*services.Scoreboard, error)) {
	gameID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var board *services.Scoreboard
	err := h.tables.Do(c.Request.Context(), gameID, func(ctx context.Context) error {
		var err error
		board, err = fn(ctx, gameID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, board)
}

func (h *GameHandler) ListGames(c *gin.Context) {
	games, err := h.games.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	board, err := h.games.Create(c.Request.Context(), req.PlayerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

// Rematch starts a new game with the players of an existing one.
func (h *GameHandler) Rematch(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	board, err := h.games.Rematch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

// AnyGame reports whether at least one game was ever started.
func (h *GameHandler) AnyGame(c *gin.Context) {
	found, err := h.games.HasAtLeastOneGame(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"any": found})
}

func (h *GameHandler) GetScoreboard(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	board, err := h.games.Scoreboard(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *GameHandler) DeleteGames(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 每局的删除都排在该局已有命令之后
	batch := &services.BatchError{Requested: len(req.IDs)}
	deleted := 0
	for _, id := range req.IDs {
		err := h.tables.Do(c.Request.Context(), id, func(ctx context.Context) error {
			return h.games.DeleteGame(ctx, id)
		})
		if err != nil {
			batch.Failed++
			batch.Errs = append(batch.Errs, err)
			continue
		}
		deleted++
	}
	if batch.Failed > 0 {
		logger.Log.Warnf("game deletion: %d of %d failed", batch.Failed, batch.Requested)
		respondError(c, batch)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *GameHandler) NextTurn(c *gin.Context) {
	h.mutate(c, http.StatusOK, h.games.StartNextTurn)
}

func (h *GameHandler) EndGame(c *gin.Context) {
	h.mutate(c, http.StatusOK, h.games.End)
}

func (h *GameHandler) CurrentTurn(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.games.CurrentTurn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Turn(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid number"})
		return
	}
	view, err := h.games.Turn(c.Request.Context(), id, number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) SaveDeclarations(c *gin.Context) {
	var req DeclarationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, http.StatusOK, func(ctx context.Context, gameID int64) (*services.Scoreboard, error) {
		return h.games.SaveDeclarations(ctx, gameID, req.Declarations)
	})
}

func (h *GameHandler) SaveResults(c *gin.Context) {
	var req ResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, http.StatusOK, func(ctx context.Context, gameID int64) (*services.Scoreboard, error) {
		return h.games.SaveResults(ctx, gameID, req.Results)
	})
}

func (h *GameHandler) UpdateBonus(c *gin.Context) {
	var req BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, http.StatusOK, func(ctx context.Context, gameID int64) (*services.Scoreboard, error) {
		return h.games.UpdateBonus(ctx, gameID, req.Claims)
	})
}
