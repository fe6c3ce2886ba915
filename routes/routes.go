// routes/routes.go
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/skullscore/handlers"
	"github.com/wfunc/skullscore/monitor"
	"github.com/wfunc/skullscore/persistence"
)

// Dependencies of the HTTP surface. Monitor and WebSocket may be nil.
type Dependencies struct {
	Players   *handlers.PlayerHandler
	Games     *handlers.GameHandler
	Store     persistence.Store
	Monitor   *monitor.Monitor
	WebSocket gin.HandlerFunc
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Monitor != nil {
		router.Use(Metrics(deps.Monitor))
	}

	api := router.Group("/api")
	{
		players := api.Group("/players")
		{
			players.GET("", deps.Players.ListPlayers)
			players.POST("", deps.Players.CreatePlayer)
			players.DELETE("", deps.Players.DeletePlayers)
			players.GET("/:id", deps.Players.GetPlayer)
			players.PUT("/:id", deps.Players.UpdatePlayer)
		}

		api.GET("/groups", deps.Players.ListGroups)

		games := api.Group("/games")
		{
			games.GET("", deps.Games.ListGames)
			games.POST("", deps.Games.CreateGame)
			games.DELETE("", deps.Games.DeleteGames)
			games.GET("/any", deps.Games.AnyGame)
			games.GET("/:id", deps.Games.GetScoreboard)
			games.POST("/:id/rematch", deps.Games.Rematch)
			games.POST("/:id/next-turn", deps.Games.NextTurn)
			games.POST("/:id/end", deps.Games.EndGame)

			turns := games.Group("/:id/turns")
			{
				turns.GET("/current", deps.Games.CurrentTurn)
				turns.PUT("/current/declarations", deps.Games.SaveDeclarations)
				turns.PUT("/current/results", deps.Games.SaveResults)
				turns.PUT("/current/bonus", deps.Games.UpdateBonus)
				turns.GET("/:number", deps.Games.Turn)
			}
		}
	}

	if deps.WebSocket != nil {
		router.GET("/ws", deps.WebSocket)
	}
	if deps.Monitor != nil {
		router.GET("/metrics", gin.WrapH(deps.Monitor.Handler()))
	}

	router.GET("/healthz", func(c *gin.Context) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Metrics records every request by route template.
func Metrics(m *monitor.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
