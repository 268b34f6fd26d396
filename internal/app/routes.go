package app

import (
	"github.com/gin-gonic/gin"

	"github.com/smartnotes/core/internal/modules/health"
	"github.com/smartnotes/core/internal/modules/notes"
	"github.com/smartnotes/core/internal/pkg/response"
)

func (a *App) registerRoutes(notesHandler *notes.Handler) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	api := r.Group("/api/v1")
	health.RegisterRoutes(api, health.Deps{
		DB:        a.db,
		Redis:     a.redis,
		Scheduler: a.sched,
		StartedAt: a.started,
	})
	notesHandler.RegisterRoutes(api)
}
