// handlers/player_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/skullscore/services"
)

type PlayerHandler struct {
	players *services.PlayerService
	groups  *services.GroupService
}

func NewPlayerHandler(players *services.PlayerService, groups *services.GroupService) *PlayerHandler {
	return &PlayerHandler{players: players, groups: groups}
}

func (h *PlayerHandler) ListPlayers(c *gin.Context) {
	players, err := h.players.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	player, err := h.players.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (h *PlayerHandler) CreatePlayer(c *gin.Context) {
	var req services.PlayerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	player, err := h.players.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, player)
}

func (h *PlayerHandler) UpdatePlayer(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.PlayerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	player, err := h.players.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

// DeletePlayers removes a batch; players with game history are kept and
// reported in the 409 body.
func (h *PlayerHandler) DeletePlayers(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := h.players.Delete(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *PlayerHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}
