package handlers

import (
	"net/http"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/cache"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
)

// AuthHandler holds dependencies
type AuthHandler struct {
	users    *users.Service
	verifier middleware.Verifier
	cache    *cache.Cache
}

// NewAuthHandler wires the user directory. verifier may be nil, in which
// case /auth/sync trusts the request body. c holds the admin stats that role
// changes invalidate; it may be nil.
func NewAuthHandler(u *users.Service, verifier middleware.Verifier, c *cache.Cache) *AuthHandler {
	return &AuthHandler{users: u, verifier: verifier, cache: c}
}

// Register routes under /auth. identity is the Access Guard; limit runs
// after it (or after token verification on /sync).
func (h *AuthHandler) Register(rg *gin.RouterGroup, identity gin.HandlerFunc, limit ...gin.HandlerFunc) {
	a := rg.Group("/auth")
	verified := append(gin.HandlersChain{middleware.VerifyBearer(h.verifier)}, limit...)
	a.POST("/sync", append(verified, h.Sync)...)

	guarded := a.Group("", append(gin.HandlersChain{identity}, limit...)...)
	guarded.GET("/me", h.Me)

	admin := guarded.Group("", middleware.RequireAdmin())
	admin.GET("/users", h.ListUsers)
	admin.PATCH("/promote/:userId", h.Promote)
	admin.PATCH("/demote/:userId", h.Demote)
	admin.PATCH("/users/:userId/toggle-active", h.ToggleActive)
}

type profile struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	IsActive  bool        `json:"isActive"`
	IsAdmin   bool        `json:"isAdmin"`
	CreatedAt time.Time   `json:"createdAt"`
}

func profileOf(u *models.User) profile {
	return profile{
		ID:        u.ID.Hex(),
		Email:     u.Email,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin(),
		CreatedAt: u.CreatedAt,
	}
}

// Sync creates or refreshes the directory record for an externally
// authenticated user. Verified token claims take precedence over the body.
func (h *AuthHandler) Sync(c *gin.Context) {
	var in users.SyncInput
	if err := c.ShouldBindJSON(&in); err != nil && c.Request.ContentLength > 0 {
		response.Fail(c, apperr.Validation("Invalid request body", err.Error()))
		return
	}
	if v, ok := c.Get(middleware.ClaimsKey); ok {
		if cm, ok := v.(map[string]interface{}); ok {
			in = mergeClaims(users.InputFromClaims(cm), in)
		}
	}
	u, created, err := h.users.Sync(c.Request.Context(), in)
	if err != nil {
		response.Fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, "User synced successfully", profileOf(u), nil)
}

func mergeClaims(claims, body users.SyncInput) users.SyncInput {
	if claims.ExternalID == "" {
		claims.ExternalID = body.ExternalID
	}
	if claims.Email == "" {
		claims.Email = body.Email
	}
	if claims.Username == "" {
		claims.Username = body.Username
	}
	if claims.Name == "" {
		claims.Name = body.Name
	}
	return claims
}

func (h *AuthHandler) Me(c *gin.Context) {
	response.JSON(c, http.StatusOK, "Profile fetched successfully", profileOf(middleware.CurrentUser(c)), nil)
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		response.Fail(c, apperr.Internal("Failed to fetch users", err))
		return
	}
	response.JSON(c, http.StatusOK, "Users fetched successfully", list, gin.H{"total": len(list)})
}

func (h *AuthHandler) Promote(c *gin.Context) {
	u, err := h.users.Promote(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	invalidateStats(c, h.cache)
	logger.Infof("user %s promoted to admin by %s", u.ID.Hex(), middleware.CurrentUser(c).ID.Hex())
	response.JSON(c, http.StatusOK, "User promoted to admin successfully", profileOf(u), nil)
}

func (h *AuthHandler) Demote(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	u, err := h.users.Demote(c.Request.Context(), actor, c.Param("userId"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	invalidateStats(c, h.cache)
	logger.Infof("user %s demoted to resident by %s", u.ID.Hex(), actor.ID.Hex())
	response.JSON(c, http.StatusOK, "User demoted to resident successfully", profileOf(u), nil)
}

func (h *AuthHandler) ToggleActive(c *gin.Context) {
	u, err := h.users.ToggleActive(c.Request.Context(), middleware.CurrentUser(c), c.Param("userId"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	invalidateStats(c, h.cache)
	state := "deactivated"
	if u.IsActive {
		state = "activated"
	}
	response.JSON(c, http.StatusOK, "User "+state+" successfully", profileOf(u), nil)
}
