package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/cache"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
	"github.com/communityconnect/connect/backend/go-services/internal/report/service"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
)

const statsCacheKey = "admin:stats"

// AdminHandler serves the admin dashboard. Every route requires an admin.
type AdminHandler struct {
	reports  *service.Service
	users    *users.Service
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewAdminHandler wires the admin routes. c may be nil to disable caching.
func NewAdminHandler(reports *service.Service, u *users.Service, c *cache.Cache, ttl time.Duration) *AdminHandler {
	return &AdminHandler{reports: reports, users: u, cache: c, cacheTTL: ttl}
}

func (h *AdminHandler) Register(rg *gin.RouterGroup, identity gin.HandlerFunc, limit ...gin.HandlerFunc) {
	chain := append(gin.HandlersChain{identity}, limit...)
	a := rg.Group("/admin", append(chain, middleware.RequireAdmin())...)
	a.GET("/stats", h.Stats)
	a.GET("/reports", h.Reports)
	a.GET("/users", h.Users)
	a.PATCH("/users/:id/role", h.SetRole)
}

type reportStats struct {
	StatusSummary   []repository.Bucket   `json:"statusSummary"`
	CategorySummary []repository.Bucket   `json:"categorySummary"`
	PrioritySummary []repository.Bucket   `json:"prioritySummary"`
	RecentActivity  []repository.Activity `json:"recentActivity"`
	ReportsByDay    []repository.Bucket   `json:"reportsByDay"`
}

type statsSummary struct {
	TotalReports         int64 `json:"totalReports"`
	TotalUsers           int64 `json:"totalUsers"`
	ReportsToday         int64 `json:"reportsToday"`
	ReportsWithImages    int64 `json:"reportsWithImages"`
	PercentageWithImages int64 `json:"percentageWithImages"`
}

type adminStats struct {
	Reports reportStats         `json:"reports"`
	Users   []repository.Bucket `json:"users"`
	Summary statsSummary        `json:"summary"`
}

func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	caller := middleware.CurrentUser(c)
	me := gin.H{"user": gin.H{"id": caller.ID.Hex(), "email": caller.Email, "role": caller.Role}}

	var stats adminStats
	if hit, err := h.cache.Get(ctx, statsCacheKey, &stats); err != nil {
		logger.Warnf("stats cache read: %v", err)
	} else if hit {
		response.JSON(c, http.StatusOK, "Admin statistics fetched successfully", stats, me)
		return
	}

	ov, err := h.reports.Overview(ctx, caller)
	if err != nil {
		response.Fail(c, apperr.Internal("Failed to fetch admin statistics", err))
		return
	}
	byRole, err := h.users.CountByRole(ctx)
	if err != nil {
		response.Fail(c, apperr.Internal("Failed to fetch admin statistics", err))
		return
	}

	stats = adminStats{
		Reports: reportStats{
			StatusSummary:   ov.ByStatus,
			CategorySummary: ov.ByCategory,
			PrioritySummary: ov.ByPriority,
			RecentActivity:  ov.RecentActivity,
			ReportsByDay:    ov.ReportsByDay,
		},
		Users: roleBuckets(byRole),
		Summary: statsSummary{
			TotalReports:         ov.Total,
			ReportsToday:         ov.Today,
			ReportsWithImages:    ov.WithImages,
			PercentageWithImages: service.Percentage(ov.WithImages, ov.Total),
		},
	}
	for _, b := range stats.Users {
		stats.Summary.TotalUsers += b.Count
	}
	if err := h.cache.Set(ctx, statsCacheKey, stats, h.cacheTTL); err != nil {
		logger.Warnf("stats cache write: %v", err)
	}
	response.JSON(c, http.StatusOK, "Admin statistics fetched successfully", stats, me)
}

// invalidateStats drops cached stats after a change to user counts.
func invalidateStats(c *gin.Context, sc *cache.Cache) {
	if err := sc.Delete(c.Request.Context(), statsCacheKey); err != nil {
		logger.Warnf("stats cache invalidate: %v", err)
	}
}

func roleBuckets(byRole map[models.Role]int64) []repository.Bucket {
	out := make([]repository.Bucket, 0, len(byRole))
	for role, n := range byRole {
		out = append(out, repository.Bucket{ID: string(role), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *AdminHandler) Reports(c *gin.Context) {
	p := service.ParseListParams(c.Query, service.DefaultAdminLimit)
	res, err := h.reports.List(c.Request.Context(), middleware.CurrentUser(c), p)
	if err != nil {
		response.Fail(c, apperr.Internal("Failed to fetch admin reports", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Reports fetched successfully",
		"data":       res.Data,
		"pagination": res.Pagination,
		"search":     res.Search,
		"filters":    res.Filters,
	})
}

func (h *AdminHandler) Users(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		response.Fail(c, apperr.Internal("Failed to fetch users", err))
		return
	}
	response.JSON(c, http.StatusOK, "Users fetched successfully", list, gin.H{"total": len(list)})
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	var body struct {
		Role models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, apperr.Validation(`Invalid role. Must be "resident" or "admin"`))
		return
	}
	u, err := h.users.SetRole(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.Role)
	if err != nil {
		response.Fail(c, err)
		return
	}
	invalidateStats(c, h.cache)
	response.JSON(c, http.StatusOK, "User role updated to "+string(u.Role), u, nil)
}
