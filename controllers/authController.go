package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"civicfeed-be/engine"
	"civicfeed-be/models"
	authUtils "civicfeed-be/utils"

	"github.com/gin-gonic/gin"
)

// AuthController is the retained auth surface. The engine itself only
// ever sees the Identity the middleware derives from the token; this
// controller exists to mint those tokens and to back reporter
// projections with real users.
type AuthController struct {
	users     engine.UserDirectory
	jwtSecret string
	log       *slog.Logger
}

func NewAuthController(users engine.UserDirectory, jwtSecret string, log *slog.Logger) *AuthController {
	return &AuthController{users: users, jwtSecret: jwtSecret, log: log}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Avatar   string `json:"avatar"`
}

// Register handles POST /api/auth/register.
func (ac *AuthController) Register(c *gin.Context) {
	var input registerRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ac.log, engine.NewValidationError("", err.Error()))
		return
	}

	user := models.User{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		Avatar:    input.Avatar,
		Role:      models.RoleCitizen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := user.HashPassword(); err != nil {
		respondError(c, ac.log, err)
		return
	}

	if err := ac.users.CreateUser(c.Request.Context(), &user); err != nil {
		respondError(c, ac.log, err)
		return
	}

	respondData(c, http.StatusCreated, "Registered successfully", gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c *gin.Context) {
	var input loginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ac.log, engine.NewValidationError("", err.Error()))
		return
	}

	user, err := ac.users.UserByEmail(c.Request.Context(), input.Email)
	if err != nil {
		var notFound *engine.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusUnauthorized, envelope{Error: "invalid credentials"})
			return
		}
		respondError(c, ac.log, err)
		return
	}
	if !user.ComparePassword(input.Password) {
		c.JSON(http.StatusUnauthorized, envelope{Error: "invalid credentials"})
		return
	}

	token, err := authUtils.GenerateToken(ac.jwtSecret, user.ID.Hex(), user.Role)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}

	respondData(c, http.StatusOK, "Logged in successfully", gin.H{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
		"token": token,
	})
}

// Me handles GET /api/auth/me.
func (ac *AuthController) Me(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	user, err := ac.users.UserByID(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, ac.log, err)
		return
	}
	respondData(c, http.StatusOK, "", gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"avatar":    user.Avatar,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
	})
}
