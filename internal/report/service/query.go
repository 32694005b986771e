package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
)

const (
	DefaultLimit      = 10
	DefaultAdminLimit = 20
	MaxLimit          = 100
	// MaxPage keeps (page-1)*limit well inside int64.
	MaxPage = 1 << 30
)

// sortable lists the fields a caller may sort by; anything else falls back
// to createdAt.
var sortable = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"title":     true,
	"status":    true,
	"category":  true,
	"priority":  true,
}

// ListParams are the raw list parameters as received in the query string.
type ListParams struct {
	Status    string
	Category  string
	Priority  string
	Assigned  string
	HasImages string
	DateFrom  string
	DateTo    string
	DaysOld   string
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// ParseListParams reads list parameters through get, typically
// gin.Context.Query. Page defaults to 1 and limit to defaultLimit; limit is
// clamped to [1, MaxLimit].
func ParseListParams(get func(string) string, defaultLimit int) ListParams {
	p := ListParams{
		Status:    strings.TrimSpace(get("status")),
		Category:  strings.TrimSpace(get("category")),
		Priority:  strings.TrimSpace(get("priority")),
		Assigned:  strings.TrimSpace(get("assigned")),
		HasImages: strings.TrimSpace(get("hasImages")),
		DateFrom:  strings.TrimSpace(get("dateFrom")),
		DateTo:    strings.TrimSpace(get("dateTo")),
		DaysOld:   strings.TrimSpace(get("daysOld")),
		Search:    strings.TrimSpace(get("search")),
		SortBy:    strings.TrimSpace(get("sortBy")),
		SortOrder: strings.ToLower(strings.TrimSpace(get("sortOrder"))),
		Page:      1,
		Limit:     defaultLimit,
	}
	if n, err := strconv.Atoi(get("page")); err == nil && n > 1 {
		p.Page = clampPage(n)
	}
	if n, err := strconv.Atoi(get("limit")); err == nil {
		p.Limit = n
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func clampPage(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxPage:
		return MaxPage
	}
	return n
}

// BuildQuery turns p into a store query for caller. Non-admin callers are
// always restricted to their own reports.
func BuildQuery(caller *models.User, p ListParams, now time.Time) repository.Query {
	q := repository.Query{
		Status:   p.Status,
		Category: p.Category,
		Priority: p.Priority,
		Search:   p.Search,
		SortBy:   p.SortBy,
		SortDesc: p.SortOrder == "" || p.SortOrder == "desc",
		Skip:     int64(clampPage(p.Page)-1) * int64(p.Limit),
		Limit:    int64(p.Limit),
	}
	if !sortable[q.SortBy] {
		q.SortBy = "createdAt"
	}
	if !caller.IsAdmin() {
		id := caller.ID
		q.CreatedBy = &id
	}
	q.Assigned = parseBool(p.Assigned)
	q.HasImages = parseBool(p.HasImages)

	if t, ok := parseDate(p.DateFrom, false); ok {
		q.CreatedFrom = &t
	}
	if t, ok := parseDate(p.DateTo, true); ok {
		q.CreatedTo = &t
	}
	if days, err := strconv.Atoi(p.DaysOld); err == nil && days > 0 {
		from := now.AddDate(0, 0, -days)
		if q.CreatedFrom == nil || from.After(*q.CreatedFrom) {
			q.CreatedFrom = &from
		}
	}
	return q
}

func parseBool(s string) *bool {
	switch s {
	case "true":
		b := true
		return &b
	case "false":
		b := false
		return &b
	}
	return nil
}

// parseDate accepts RFC3339 timestamps and YYYY-MM-DD dates. A bare date used
// as an upper bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}

type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int64 `json:"totalPages"`
	TotalReports int64 `json:"totalReports"`
	HasNext      bool  `json:"hasNext"`
	HasPrev      bool  `json:"hasPrev"`
	PageSize     int   `json:"pageSize"`
}

func NewPagination(page, limit int, total int64) Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   pages,
		TotalReports: total,
		HasNext:      int64(page) < pages,
		HasPrev:      page > 1,
		PageSize:     limit,
	}
}

// Filters echoes the effective raw filters back to the client.
type Filters struct {
	Status    string `json:"status,omitempty"`
	Category  string `json:"category,omitempty"`
	Priority  string `json:"priority,omitempty"`
	DateFrom  string `json:"dateFrom,omitempty"`
	DateTo    string `json:"dateTo,omitempty"`
	HasImages string `json:"hasImages,omitempty"`
	Assigned  string `json:"assigned,omitempty"`
	DaysOld   string `json:"daysOld,omitempty"`
	Search    string `json:"search,omitempty"`
}

func (p ListParams) Filters() Filters {
	return Filters{
		Status:    p.Status,
		Category:  p.Category,
		Priority:  p.Priority,
		DateFrom:  p.DateFrom,
		DateTo:    p.DateTo,
		HasImages: p.HasImages,
		Assigned:  p.Assigned,
		DaysOld:   p.DaysOld,
		Search:    p.Search,
	}
}
