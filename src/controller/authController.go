package controller

import (
	"errors"
	"net/http"

	"compliance-stream/logger"
	"compliance-stream/src/middleware"
	"compliance-stream/src/models"
	"compliance-stream/src/service"
	"compliance-stream/src/utils"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	Service *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{
		Service: authService,
	}
}

// @BasePath /

// Login godoc
// @Summary login
// @Param LoginRequest body models.LoginRequest true "Login Request"
// @Schemes
// @Description authenticate with username and password, receive a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var reqBody models.LoginRequest
	if err := ctx.ShouldBindJSON(&reqBody); err != nil {
		utils.SendError(ctx, http.StatusBadRequest, "Bad Request", "Invalid JSON format: "+err.Error(), "/auth/login")
		return
	}

	logger.Logger.Infof("Login attempt for user %s", reqBody.Username)

	resp, err := c.Service.Login(ctx.Request.Context(), reqBody.Username, reqBody.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			utils.SendError(ctx, http.StatusUnauthorized, "Unauthorized", "Invalid username or password", "/auth/login")
			return
		}
		utils.SendError(ctx, http.StatusInternalServerError, "Internal Error", "Login failed: "+err.Error(), "/auth/login")
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// LogoutResponse represents the response after revoking a token
type LogoutResponse struct {
	Status string `json:"status"`
}

// Logout godoc
// @Summary logout
// @Schemes
// @Description revoke the presented bearer token so it stops working immediately
// @Tags auth
// @Produce json
// @Success 200 {object} LogoutResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /auth/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	token := middleware.TokenFromContext(ctx)
	if token == "" {
		utils.SendError(ctx, http.StatusUnauthorized, "Unauthorized", "No authenticated token", "/auth/logout")
		return
	}

	if err := c.Service.Revoke(ctx.Request.Context(), token); err != nil {
		utils.SendError(ctx, http.StatusInternalServerError, "Internal Error", "Failed to revoke token: "+err.Error(), "/auth/logout")
		return
	}

	if user := middleware.UserFromContext(ctx); user != nil {
		logger.Logger.Infof("Revoked token for user %s", user.Username)
	}
	ctx.JSON(http.StatusOK, LogoutResponse{Status: "logged_out"})
}

// Me godoc
// @Summary current user
// @Schemes
// @Description return the identity behind the presented bearer token
// @Tags auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} schemas.ErrorResponse
// @Router /auth/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	user := middleware.UserFromContext(ctx)
	if user == nil {
		utils.SendError(ctx, http.StatusUnauthorized, "Unauthorized", "No authenticated user", "/auth/me")
		return
	}
	ctx.JSON(http.StatusOK, user)
}
