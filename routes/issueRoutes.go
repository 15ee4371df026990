package routes

import (
	"civicfeed-be/controllers"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes. All of them require an
// authenticated caller; creation additionally passes the rate limiter.
func IssueRoutes(r *gin.Engine, ic *controllers.IssueController, auth, rateLimit gin.HandlerFunc) {
	issues := r.Group("/api/issues")
	issues.Use(auth)
	{
		issues.POST("", rateLimit, ic.CreateIssue)
		issues.GET("", ic.ListIssues)
		issues.GET("/feed", ic.Feed)
		issues.GET("/my", ic.MyIssues)
		issues.GET("/stats/summary", ic.Stats)
		issues.GET("/:id", ic.GetIssue)
		issues.PUT("/:id", ic.UpdateIssue)
		issues.PATCH("/:id/status", ic.TransitionStatus)
		issues.DELETE("/:id", ic.DeleteIssue)
		issues.POST("/:id/upvote", ic.ToggleUpvote)
		issues.POST("/:id/comment", ic.AddComment)
	}
}
