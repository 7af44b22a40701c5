package policy

import (
	"go-leave/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	policies := r.Group("/leave-policies")
	policies.Use(middleware.AuthMiddleware())
	{
		policies.GET("", handler.GetAll)
		policies.POST("", middleware.RequireApprover(), handler.Create)
		policies.PUT("/:id", middleware.RequireApprover(), handler.Update)
		policies.DELETE("/:id", middleware.RequireApprover(), handler.Deactivate)
	}
}
