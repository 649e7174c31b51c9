package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/streaklog/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(logger))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/users", api.ListUsers)
		apiGroup.POST("/users", api.CreateUser)
		apiGroup.GET("/users/:id", api.GetUser)
		apiGroup.PUT("/users/:id", api.UpdateUser)
		apiGroup.DELETE("/users/:id", api.DeleteUser)
		apiGroup.GET("/users/:id/stats", api.GetUserStats)
		apiGroup.POST("/users/:id/stats", api.RecomputeUserStats)
		apiGroup.GET("/users/:id/analytics/:kind", api.QueryUserAnalytics)

		apiGroup.GET("/categories", api.ListCategories)
		apiGroup.POST("/categories", api.CreateCategory)
		apiGroup.GET("/categories/:id", api.GetCategory)
		apiGroup.PUT("/categories/:id", api.UpdateCategory)
		apiGroup.DELETE("/categories/:id", api.DeleteCategory)
		apiGroup.GET("/categories/:id/stats", api.GetCategoryStats)
		apiGroup.POST("/categories/:id/stats", api.RecomputeCategoryStats)

		apiGroup.GET("/habits", api.ListHabits)
		apiGroup.POST("/habits", api.CreateHabit)
		apiGroup.GET("/habits/:id", api.GetHabit)
		apiGroup.PUT("/habits/:id", api.UpdateHabit)
		apiGroup.DELETE("/habits/:id", api.DeleteHabit)
		apiGroup.GET("/habits/:id/stats", api.GetHabitStats)
		apiGroup.POST("/habits/:id/stats", api.RecomputeHabitStats)
		apiGroup.GET("/habits/:id/logs", api.ListHabitLogs)
		apiGroup.PUT("/habits/:id/logs", api.UpsertHabitLog)
		apiGroup.DELETE("/habits/:id/logs/:logId", api.DeleteHabitLog)
	}

	return r
}
