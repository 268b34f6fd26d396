package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smartnotes/core/internal/pkg/cron"
	pkgredis "github.com/smartnotes/core/internal/pkg/redis"
)

const (
	stateOK       = "ok"
	stateDown     = "down"
	stateDisabled = "disabled"
)

// Deps are the optional backends checked by the health route. Nil fields
// are reported as disabled.
type Deps struct {
	DB        *gorm.DB
	Redis     *pkgredis.Client
	Scheduler *cron.Scheduler
	StartedAt time.Time
}

func RegisterRoutes(rg *gin.RouterGroup, deps Deps) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		db := checkDB(ctx, deps.DB)
		rds := checkRedis(ctx, deps.Redis)

		status := "ok"
		code := http.StatusOK
		if db == stateDown || rds == stateDown {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":   status,
			"database": db,
			"redis":    rds,
		}
		if !deps.StartedAt.IsZero() {
			body["uptime_seconds"] = int64(time.Since(deps.StartedAt) / time.Second)
		}
		if deps.Scheduler != nil {
			body["jobs"] = deps.Scheduler.List()
		}
		c.JSON(code, body)
	})
}

func checkDB(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return stateDisabled
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return stateDown
	}
	return stateOK
}

func checkRedis(ctx context.Context, rc *pkgredis.Client) string {
	if rc == nil {
		return stateDisabled
	}
	if rc.Ping(ctx) != nil {
		return stateDown
	}
	return stateOK
}
