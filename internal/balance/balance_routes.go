package balance

import (
	"go-leave/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	balances := r.Group("/leave-balances")
	balances.Use(middleware.AuthMiddleware())
	{
		balances.GET("/:employeeId", handler.GetEmployeeBalances)
		// manual HR correction, approver claim required
		balances.POST("/adjust", middleware.RequireApprover(), handler.Adjust)
	}
}
