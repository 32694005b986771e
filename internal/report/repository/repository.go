package repository

import (
	"context"
	"errors"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound = errors.New("report not found")
)

// Query is the store-level filter shared by the Mongo and memory
// implementations. Zero values mean "no constraint".
type Query struct {
	Status      string
	Category    string
	Priority    string
	CreatedBy   *primitive.ObjectID
	Assigned    *bool
	HasImages   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Search      string

	SortBy   string
	SortDesc bool
	Skip     int64
	Limit    int64
}

// Match is a report returned by Find together with its text relevance
// score. Score is zero when the query has no search term.
type Match struct {
	Report report.Report
	Score  float64
}

// Patch lists the fields of an update. Nil fields are left untouched;
// PushImages appends to the stored image list.
type Patch struct {
	Title       *string
	Description *string
	Category    *report.Category
	Status      *report.Status
	Priority    *report.Priority
	Location    *report.Location
	Tags        *[]string
	AssignedTo  *primitive.ObjectID
	Images      *[]report.Image
	PushImages  []report.Image
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Status == nil &&
		p.Priority == nil && p.Location == nil && p.Tags == nil && p.AssignedTo == nil &&
		p.Images == nil && len(p.PushImages) == 0
}

// Bucket is one row of a group-by-count aggregation.
type Bucket struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type Activity struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	Title     string             `json:"title" bson:"title"`
	Status    report.Status      `json:"status" bson:"status"`
	Category  report.Category    `json:"category" bson:"category"`
	Priority  report.Priority    `json:"priority" bson:"priority"`
	CreatedBy primitive.ObjectID `json:"createdBy" bson:"createdBy"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// Overview aggregates the reports visible to one scope.
type Overview struct {
	ByStatus       []Bucket   `json:"byStatus"`
	ByCategory     []Bucket   `json:"byCategory"`
	ByPriority     []Bucket   `json:"byPriority"`
	WithImages     int64      `json:"withImages"`
	Assigned       int64      `json:"assigned"`
	Recent         int64      `json:"recent"`
	Today          int64      `json:"today"`
	Total          int64      `json:"total"`
	RecentActivity []Activity `json:"recentActivity"`
	ReportsByDay   []Bucket   `json:"reportsByDay"`
}

// Suggestions are the values matching a partial search term.
type Suggestions struct {
	Categories []string `json:"categories"`
	Statuses   []string `json:"statuses"`
	Titles     []string `json:"titleSuggestions"`
}

const (
	RecentWindow      = 7 * 24 * time.Hour
	ActivityLimit     = 10
	DaysLimit         = 7
	TitleSuggestLimit = 5
)

// Repository is the Report Store.
type Repository interface {
	Create(ctx context.Context, r *report.Report) error
	Get(ctx context.Context, id primitive.ObjectID) (*report.Report, error)
	Find(ctx context.Context, q Query) ([]Match, error)
	Count(ctx context.Context, q Query) (int64, error)
	Update(ctx context.Context, id primitive.ObjectID, p Patch) (*report.Report, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	Suggest(ctx context.Context, term string, owner *primitive.ObjectID) (*Suggestions, error)
	Overview(ctx context.Context, owner *primitive.ObjectID, now time.Time) (*Overview, error)
}

// startOfDay returns midnight UTC of t's day.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
