package routes

import (
	"civicfeed-be/controllers"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the auth routes.
func AuthRoutes(r *gin.Engine, ac *controllers.AuthController, auth gin.HandlerFunc) {
	group := r.Group("/api/auth")
	{
		group.POST("/register", ac.Register)
		group.POST("/login", ac.Login)
		group.GET("/me", auth, ac.Me)
	}
}
