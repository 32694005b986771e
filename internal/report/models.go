package report

import (
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusOpen         Status = "Open"
	StatusAcknowledged Status = "Acknowledged"
	StatusInProgress   Status = "In Progress"
	StatusResolved     Status = "Resolved"
)

// Statuses lists every status in workflow order. Transitions between them
// are not enforced; an admin may set any status at any time.
var Statuses = []Status{StatusOpen, StatusAcknowledged, StatusInProgress, StatusResolved}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryInfrastructure Category = "Infrastructure"
	CategorySanitation     Category = "Sanitation"
	CategoryParks          Category = "Parks & Recreation"
	CategorySafety         Category = "Safety"
	CategoryOther          Category = "Other"
)

var Categories = []Category{CategoryInfrastructure, CategorySanitation, CategoryParks, CategorySafety, CategoryOther}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

type Location struct {
	Address     string      `json:"address" bson:"address"`
	Coordinates Coordinates `json:"coordinates" bson:"coordinates"`
}

// Image is a stored attachment. PublicID is the storage object key.
type Image struct {
	URL        string    `json:"url" bson:"url"`
	PublicID   string    `json:"publicId" bson:"publicId"`
	UploadedAt time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

// Report is the persisted issue record.
type Report struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Title       string              `json:"title" bson:"title"`
	Description string              `json:"description" bson:"description"`
	Category    Category            `json:"category" bson:"category"`
	Status      Status              `json:"status" bson:"status"`
	Priority    Priority            `json:"priority" bson:"priority"`
	Location    Location            `json:"location" bson:"location"`
	Tags        []string            `json:"tags" bson:"tags"`
	Images      []Image             `json:"images" bson:"images"`
	CreatedBy   primitive.ObjectID  `json:"createdBy" bson:"createdBy"`
	AssignedTo  *primitive.ObjectID `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	CreatedAt   time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// Normalize fills defaults and keeps slices non-nil so that they are stored
// as empty arrays rather than null.
func (r *Report) Normalize() {
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if r.Images == nil {
		r.Images = []Image{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
}

// View is the read shape of a report with owner and assignee resolved.
type View struct {
	Report
	CreatedBy  *models.UserSummary `json:"createdBy"`
	AssignedTo *models.UserSummary `json:"assignedTo,omitempty"`
	Score      float64             `json:"score,omitempty"`
}
