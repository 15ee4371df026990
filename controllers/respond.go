package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondData(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondError maps the engine error taxonomy to HTTP statuses.
// Unexpected errors become opaque 500s carrying only the request
// correlation ID.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	var (
		locErr    *engine.InvalidLocationError
		validErr  *engine.ValidationError
		notFound  *engine.NotFoundError
		forbidden *engine.ForbiddenError
		storeErr  *engine.StoreUnavailableError
	)
	switch {
	case errors.As(err, &locErr):
		c.JSON(http.StatusBadRequest, envelope{Error: locErr.Message})
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, envelope{Error: validErr.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, envelope{Error: notFound.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, envelope{Error: forbidden.Message})
	case errors.As(err, &storeErr):
		c.JSON(http.StatusServiceUnavailable, envelope{Error: "backing store unavailable, retry with backoff"})
	default:
		requestID := c.GetString("request_id")
		log.Error("unhandled error", "error", err, "request_id", requestID, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, envelope{
			Error:   "internal server error",
			Message: "request " + requestID,
		})
	}
}

// callerIdentity reads the authenticated identity placed in the request
// context by the auth middleware.
func callerIdentity(c *gin.Context) (engine.Identity, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, envelope{Error: "user not authenticated"})
		return engine.Identity{}, false
	}
	hex, _ := raw.(string)
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		c.JSON(http.StatusUnauthorized, envelope{Error: "invalid user ID"})
		return engine.Identity{}, false
	}
	role := c.GetString("user_role")
	if role == "" {
		role = models.RoleCitizen
	}
	return engine.Identity{UserID: id, Role: role}, true
}
