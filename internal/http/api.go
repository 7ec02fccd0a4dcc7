package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cloud-clicker/internal/service"
)

const claimsContextKey = "identity_claims"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users  service.UserService
	clicks service.ClickService
	tokens service.TokenService
}

func NewHandler(users service.UserService, clicks service.ClickService, tokens service.TokenService) *Handler {
	return &Handler{
		users:  users,
		clicks: clicks,
		tokens: tokens,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/register", h.register)
		api.POST("/login", h.login)
		api.GET("/clicks", h.authOptional(), h.getClicks)
		api.POST("/clicks", h.authRequired(), h.postClicks)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authRequired rejects requests without a valid bearer token. The rejection
// body does not distinguish a missing token from an invalid one.
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := h.verifyBearer(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token required"})
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// authOptional attaches identity claims when a valid token is present and
// silently continues otherwise.
func (h *Handler) authOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := h.verifyBearer(c); err == nil {
			c.Set(claimsContextKey, claims)
		}
		c.Next()
	}
}

func (h *Handler) verifyBearer(c *gin.Context) (*service.Claims, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, service.ErrInvalidToken
	}
	return h.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
}

func claimsFrom(c *gin.Context) (*service.Claims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*service.Claims)
	return claims, ok
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "username and password are required"})
		return
	}

	_, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"msg": "Username already exists"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "username and password are required"})
	case err != nil:
		respondStorageFault(c)
	default:
		c.JSON(http.StatusCreated, gin.H{"msg": "User registered successfully"})
	}
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Bad username or password"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Bad username or password"})
			return
		}
		respondStorageFault(c)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		respondStorageFault(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

func (h *Handler) getClicks(c *gin.Context) {
	total, err := h.clicks.Totals(c.Request.Context())
	if err != nil {
		respondStorageFault(c)
		return
	}

	resp := gin.H{"total_clicks": total}
	if claims, ok := claimsFrom(c); ok {
		userClicks, err := h.clicks.UserClicks(c.Request.Context(), claims.UserID)
		if err != nil {
			respondStorageFault(c)
			return
		}
		resp["user_clicks"] = userClicks
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) postClicks(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Token required"})
		return
	}

	totals, err := h.clicks.Increment(c.Request.Context(), claims.UserID)
	if err != nil {
		respondStorageFault(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_clicks": totals.Total,
		"user_clicks":  totals.UserClicks,
	})
}

// respondStorageFault hides internal failure detail from the client.
func respondStorageFault(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "service unavailable"})
}
