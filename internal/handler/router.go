package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/relnote/internal/middleware"
)

type RouterDeps struct {
	Notes           *NoteHandler
	Search          *SearchHandler
	JWTSecret       []byte
	RequestTimeout  time.Duration
	SearchPerMinute int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	searchGroup := api.Group("/search")
	searchGroup.Use(
		middleware.OptionalJWTAuth(deps.JWTSecret),
		middleware.RateLimit(deps.SearchPerMinute),
		middleware.Timeout(deps.RequestTimeout),
	)
	searchGroup.POST("/text", deps.Search.Text)
	searchGroup.POST("/note", deps.Search.Note)

	noteGroup := api.Group("/notes")
	noteGroup.Use(middleware.JWTAuth(deps.JWTSecret), middleware.Timeout(deps.RequestTimeout))
	noteGroup.POST("", deps.Notes.Create)
	noteGroup.GET("", deps.Notes.List)
	noteGroup.GET("/:id", deps.Notes.Get)
	noteGroup.PUT("/:id", deps.Notes.Update)
	noteGroup.DELETE("/:id", deps.Notes.Delete)
}
