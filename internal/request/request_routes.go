package request

import (
	"go-leave/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler, rdb *redis.Client) {
	requests := r.Group("/leave-requests")
	requests.Use(middleware.AuthMiddleware())
	{
		requests.POST("", middleware.Idempotency(rdb), handler.Create)
		requests.GET("", handler.GetAll)
		requests.GET("/:id", handler.GetByID)
		requests.POST("/:id/approve", middleware.RequireApprover(), handler.Approve)
		requests.POST("/:id/reject", middleware.RequireApprover(), handler.Reject)
		requests.POST("/:id/cancel", handler.Cancel)
	}
}
