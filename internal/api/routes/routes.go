package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/heliolab/labassist/internal/api/handlers"
)

type Deps struct {
	Preprocess *handlers.PreprocessHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/preprocess", d.Preprocess.Submit)
	r.GET("/preprocess/:asset_id", d.Preprocess.Get)
	r.POST("/preprocess/flush", d.Preprocess.Flush)
	r.DELETE("/preprocess/:asset_id", d.Preprocess.Clear)
	r.DELETE("/preprocess", d.Preprocess.ClearAll)

	r.GET("/models", d.Preprocess.AllModels)
	r.GET("/models/vision", d.Preprocess.VisionModels)

	// WebSocket
	r.GET("/ws/preprocess", d.WS.PreprocessWS)
}
