package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
	MaxTags              = 10
)

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// DeriveTags returns the lowercase words longer than two characters found in
// title and description, deduplicated in first-seen order and capped at MaxTags.
func DeriveTags(title, description string) []string {
	text := strings.ToLower(title + " " + description)
	seen := make(map[string]struct{})
	tags := []string{}
	for _, w := range nonWord.Split(text, -1) {
		if len(w) <= 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		tags = append(tags, w)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}

// ParseLocation accepts either a JSON object or a JSON string holding an
// object (multipart forms send the latter) and returns a validated Location.
func ParseLocation(raw []byte) (Location, error) {
	loc, errs, err := parseLocation(raw)
	if err != nil {
		return Location{}, err
	}
	if len(errs) > 0 {
		return Location{}, apperr.Validation("Validation failed", errs...)
	}
	return loc, nil
}

func parseLocation(raw []byte) (Location, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Location{}, []string{"Location address is required", "Valid coordinates are required"}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Location{}, nil, invalidLocation()
		}
		raw = []byte(strings.TrimSpace(s))
		if len(raw) == 0 {
			return Location{}, []string{"Location address is required", "Valid coordinates are required"}, nil
		}
	}

	var in struct {
		Address     string                 `json:"address"`
		Coordinates map[string]interface{} `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Location{}, nil, invalidLocation()
	}

	var errs []string
	loc := Location{Address: strings.TrimSpace(in.Address)}
	if loc.Address == "" {
		errs = append(errs, "Location address is required")
	}

	switch {
	case in.Coordinates == nil:
		errs = append(errs, "Valid coordinates are required")
	case in.Coordinates["latitude"] == nil || in.Coordinates["longitude"] == nil:
		errs = append(errs, "Both latitude and longitude coordinates are required")
	default:
		lat, latOK := in.Coordinates["latitude"].(float64)
		lng, lngOK := in.Coordinates["longitude"].(float64)
		switch {
		case !latOK || !lngOK:
			errs = append(errs, "Coordinates must be valid numbers")
		case lat == 0 && lng == 0:
			errs = append(errs, "Valid coordinates are required (cannot be 0,0)")
		case lat < -90 || lat > 90 || lng < -180 || lng > 180:
			errs = append(errs, "Coordinates are out of range")
		default:
			loc.Coordinates = Coordinates{Latitude: lat, Longitude: lng}
		}
	}
	return loc, errs, nil
}

func invalidLocation() error {
	return apperr.Validation("Invalid location format", "Location must be a valid JSON object")
}

// CreateInput is the boundary shape of a new report, before validation.
type CreateInput struct {
	Title       string          `json:"title" form:"title"`
	Description string          `json:"description" form:"description"`
	Category    string          `json:"category" form:"category"`
	Priority    string          `json:"priority" form:"priority"`
	Location    json.RawMessage `json:"location" form:"-"`
}

// Build validates the input and returns an unsaved report. All field
// problems are collected into one validation error.
func (in CreateInput) Build() (*Report, error) {
	loc, locErrs, err := parseLocation(in.Location)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	var errs []string
	if title == "" {
		errs = append(errs, "Title is required")
	} else if utf8.RuneCountInString(title) > MaxTitleLength {
		errs = append(errs, fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLength))
	}
	if description == "" {
		errs = append(errs, "Description is required")
	} else if utf8.RuneCountInString(description) > MaxDescriptionLength {
		errs = append(errs, fmt.Sprintf("Description cannot exceed %d characters", MaxDescriptionLength))
	}
	category := Category(strings.TrimSpace(in.Category))
	if category == "" {
		errs = append(errs, "Category is required")
	} else if !category.Valid() {
		errs = append(errs, fmt.Sprintf("Category %q is not one of %s", category, joinValues(Categories)))
	}
	priority := Priority(strings.TrimSpace(in.Priority))
	if priority != "" && !priority.Valid() {
		errs = append(errs, fmt.Sprintf("Priority %q is not one of %s", priority, joinValues(Priorities)))
	}
	errs = append(errs, locErrs...)
	if len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs...)
	}

	r := &Report{
		Title:       title,
		Description: description,
		Category:    category,
		Priority:    priority,
		Location:    loc,
		Tags:        DeriveTags(title, description),
	}
	r.Normalize()
	return r, nil
}

func joinValues[T ~string](vs []T) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
