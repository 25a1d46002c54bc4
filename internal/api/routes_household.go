package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/internal/handlers"
	"github.com/hearthly/hearth/internal/middleware"
)

func registerChoreRoutes(api *gin.RouterGroup, handler *handlers.ChoreHandler) {
	chores := api.Group("/chores")
	{
		chores.GET("", handler.List)
		chores.POST("", handler.Create)
		chores.GET("/:id", handler.Get)
		chores.PUT("/:id", handler.Update)
		chores.DELETE("/:id", handler.Delete)
	}
}

// Children may read the family list; membership and earnings changes need a parent or a device token.
func registerFamilyRoutes(api *gin.RouterGroup, handler *handlers.FamilyHandler) {
	manage := middleware.RequireRole(iauth.RoleParent, iauth.RoleDevice)

	family := api.Group("/family")
	{
		family.GET("", handler.List)
		family.GET("/:id", handler.Get)
		family.POST("", manage, handler.Create)
		family.PUT("/:id", manage, handler.Update)
		family.DELETE("/:id", manage, handler.Delete)
	}
}

func registerShoppingRoutes(api *gin.RouterGroup, handler *handlers.ShoppingHandler) {
	shopping := api.Group("/shopping")
	{
		shopping.GET("", handler.List)
		shopping.POST("", handler.Create)
		shopping.POST("/clear-purchased", handler.ClearPurchased)
		shopping.GET("/:id", handler.Get)
		shopping.PUT("/:id", handler.Update)
		shopping.DELETE("/:id", handler.Delete)
	}
}
