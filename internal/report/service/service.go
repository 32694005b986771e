package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/media"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Directory is the part of the user directory the report service needs.
type Directory interface {
	Lookup(ctx context.Context, rawID string) (*models.User, error)
	Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.UserSummary, error)
}

// Attachments moves report images in and out of storage.
type Attachments interface {
	Validate(files []media.File) error
	Upload(ctx context.Context, files []media.File) media.UploadResult
	Remove(ctx context.Context, publicID string) bool
	DownloadURL(ctx context.Context, img report.Image) string
}

// Notifier is told about lifecycle transitions. Implementations must not
// block the caller.
type Notifier interface {
	ReportCreated(v report.View)
	StatusChanged(v report.View, from, to report.Status)
}

type Service struct {
	repo     repository.Repository
	users    Directory
	media    Attachments
	notifier Notifier
	now      func() time.Time
}

func New(repo repository.Repository, users Directory, attachments Attachments, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		media:    attachments,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SearchMeta struct {
	Query        *string `json:"query"`
	ResultsCount int     `json:"resultsCount"`
	TotalMatches int64   `json:"totalMatches"`
}

type ListResult struct {
	Data       []report.View `json:"data"`
	Pagination Pagination    `json:"pagination"`
	Search     SearchMeta    `json:"search"`
	Filters    Filters       `json:"filters"`
	UserRole   models.Role   `json:"userRole"`
}

// List runs the filtered, sorted, paginated report query for caller.
func (s *Service) List(ctx context.Context, caller *models.User, p ListParams) (*ListResult, error) {
	q := BuildQuery(caller, p, s.now())
	matches, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch reports", err)
	}
	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch reports", err)
	}
	views, err := s.resolve(ctx, matches)
	if err != nil {
		return nil, err
	}
	res := &ListResult{
		Data:       views,
		Pagination: NewPagination(clampPage(p.Page), p.Limit, total),
		Search:     SearchMeta{ResultsCount: len(views), TotalMatches: total},
		Filters:    p.Filters(),
		UserRole:   caller.Role,
	}
	if p.Search != "" {
		search := p.Search
		res.Search.Query = &search
	}
	return res, nil
}

// Get returns one report. Malformed ids are reported as not found.
func (s *Service) Get(ctx context.Context, rawID string) (*report.View, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r)
}

type Created struct {
	Report        *report.View
	ImagesCount   int
	FailedUploads []string
}

// Create validates the input and files, uploads the files, stores the report
// and notifies admins in the background.
func (s *Service) Create(ctx context.Context, caller *models.User, in report.CreateInput, files []media.File) (*Created, error) {
	r, err := in.Build()
	if err != nil {
		return nil, err
	}
	if err := s.media.Validate(files); err != nil {
		return nil, err
	}
	up := s.media.Upload(ctx, files)
	r.Images = up.Images
	r.CreatedBy = caller.ID
	if err := s.repo.Create(ctx, r); err != nil {
		s.discard(ctx, up.Images)
		return nil, apperr.Internal("Failed to create report", err)
	}
	v, err := s.view(ctx, r)
	if err != nil {
		return nil, err
	}
	logger.Infof("report %s created by %s with %d images", r.ID.Hex(), caller.ID.Hex(), len(r.Images))
	s.notifier.ReportCreated(*v)
	return &Created{Report: v, ImagesCount: len(up.Images), FailedUploads: up.Failed}, nil
}

// UpdateInput carries a partial update. Title, Description, Category and
// Location may be changed by the owner or an admin; Status, Priority and
// AssignedTo only by an admin and are ignored for anyone else.
type UpdateInput struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Category    *string         `json:"category"`
	Location    json.RawMessage `json:"location"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	AssignedTo  *string         `json:"assignedTo"`
}

func (s *Service) Update(ctx context.Context, caller *models.User, rawID string, in UpdateInput) (*report.View, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !caller.CanModify(r.CreatedBy) {
		return nil, apperr.Forbidden("Not authorized")
	}

	patch, err := s.buildPatch(ctx, caller, r, in)
	if err != nil {
		return nil, err
	}
	oldStatus := r.Status
	updated, err := s.repo.Update(ctx, r.ID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Report not found")
		}
		return nil, apperr.Internal("Failed to update report", err)
	}
	v, err := s.view(ctx, updated)
	if err != nil {
		return nil, err
	}
	// a status present in the body but equal to the current one is not a transition
	if patch.Status != nil && *patch.Status != oldStatus {
		s.notifier.StatusChanged(*v, oldStatus, *patch.Status)
	}
	return v, nil
}

func (s *Service) buildPatch(ctx context.Context, caller *models.User, r *report.Report, in UpdateInput) (repository.Patch, error) {
	var p repository.Patch
	var errs []string

	title, description := r.Title, r.Description
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" || len([]rune(t)) > report.MaxTitleLength {
			errs = append(errs, fmt.Sprintf("Title must be between 1 and %d characters", report.MaxTitleLength))
		}
		title = t
		p.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" || len([]rune(d)) > report.MaxDescriptionLength {
			errs = append(errs, fmt.Sprintf("Description must be between 1 and %d characters", report.MaxDescriptionLength))
		}
		description = d
		p.Description = &d
	}
	if p.Title != nil || p.Description != nil {
		tags := report.DeriveTags(title, description)
		p.Tags = &tags
	}
	if in.Category != nil {
		c := report.Category(strings.TrimSpace(*in.Category))
		if !c.Valid() {
			errs = append(errs, fmt.Sprintf("Category %q is not valid", c))
		}
		p.Category = &c
	}
	if len(in.Location) > 0 && string(in.Location) != "null" {
		loc, err := report.ParseLocation(in.Location)
		if err != nil {
			var e *apperr.Error
			if errors.As(err, &e) && len(e.Errors) > 0 {
				errs = append(errs, e.Errors...)
			} else {
				errs = append(errs, "Location must be a valid JSON object")
			}
		} else {
			p.Location = &loc
		}
	}

	if caller.IsAdmin() {
		if in.Status != nil && *in.Status != "" {
			st := report.Status(*in.Status)
			if !st.Valid() {
				errs = append(errs, fmt.Sprintf("Status %q is not valid", st))
			}
			p.Status = &st
		}
		if in.Priority != nil && *in.Priority != "" {
			pr := report.Priority(*in.Priority)
			if !pr.Valid() {
				errs = append(errs, fmt.Sprintf("Priority %q is not valid", pr))
			}
			p.Priority = &pr
		}
		if in.AssignedTo != nil && *in.AssignedTo != "" {
			assignee, err := s.users.Lookup(ctx, *in.AssignedTo)
			if err != nil {
				return p, apperr.Internal("Failed to update report", err)
			}
			if assignee == nil {
				errs = append(errs, "Assigned user not found")
			} else {
				p.AssignedTo = &assignee.ID
			}
		}
	}
	if len(errs) > 0 {
		return p, apperr.Validation("Validation failed", errs...)
	}
	return p, nil
}

// Delete removes the report. Stored images are not removed.
func (s *Service) Delete(ctx context.Context, caller *models.User, rawID string) (primitive.ObjectID, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if !caller.CanModify(r.CreatedBy) {
		return primitive.NilObjectID, apperr.Forbidden("Not authorized to delete this report")
	}
	if err := s.repo.Delete(ctx, r.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return primitive.NilObjectID, apperr.NotFound("Report not found")
		}
		return primitive.NilObjectID, apperr.Internal("Failed to delete report", err)
	}
	return r.ID, nil
}

type ImagesAdded struct {
	NewImages     []report.Image `json:"newImages"`
	TotalImages   int            `json:"totalImages"`
	FailedUploads []string       `json:"failedUploads,omitempty"`
}

func (s *Service) AddImages(ctx context.Context, caller *models.User, rawID string, files []media.File) (*ImagesAdded, error) {
	r, err := s.loadModifiable(ctx, caller, rawID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.Validation("No images provided", "At least one image file is required")
	}
	if err := s.media.Validate(files); err != nil {
		return nil, err
	}
	up := s.media.Upload(ctx, files)
	total := len(r.Images)
	if len(up.Images) > 0 {
		updated, err := s.repo.Update(ctx, r.ID, repository.Patch{PushImages: up.Images})
		if err != nil {
			s.discard(ctx, up.Images)
			return nil, apperr.Internal("Failed to add images", err)
		}
		total = len(updated.Images)
	}
	return &ImagesAdded{NewImages: up.Images, TotalImages: total, FailedUploads: up.Failed}, nil
}

type ImageRemoval struct {
	RemovedImage    report.Image `json:"removedImage"`
	StorageDeleted  bool         `json:"storageDeleted"`
	RemainingImages int          `json:"remainingImages"`
}

// RemoveImage deletes the stored object first and then drops the entry from
// the report, whether or not the storage deletion succeeded.
func (s *Service) RemoveImage(ctx context.Context, caller *models.User, rawID, rawIndex string) (*ImageRemoval, error) {
	r, err := s.loadModifiable(ctx, caller, rawID)
	if err != nil {
		return nil, err
	}
	idx, err := strconv.Atoi(rawIndex)
	if err != nil || idx < 0 || idx >= len(r.Images) {
		return nil, apperr.Validation("Invalid image index")
	}
	removed := r.Images[idx]
	deleted := s.media.Remove(ctx, removed.PublicID)

	images := append(append([]report.Image{}, r.Images[:idx]...), r.Images[idx+1:]...)
	updated, err := s.repo.Update(ctx, r.ID, repository.Patch{Images: &images})
	if err != nil {
		return nil, apperr.Internal("Failed to remove image", err)
	}
	return &ImageRemoval{RemovedImage: removed, StorageDeleted: deleted, RemainingImages: len(updated.Images)}, nil
}

type RemovedImage struct {
	report.Image
	Index          int  `json:"index"`
	StorageDeleted bool `json:"storageDeleted"`
}

type BulkRemoval struct {
	RemovedImages   []RemovedImage `json:"removedImages"`
	RemainingImages int            `json:"remainingImages"`
}

// RemoveImages removes the images at indexes, resolved against the list as
// loaded. Duplicates and out-of-range indexes are ignored; removal proceeds
// from the highest index down.
func (s *Service) RemoveImages(ctx context.Context, caller *models.User, rawID string, indexes []int) (*BulkRemoval, error) {
	r, err := s.loadModifiable(ctx, caller, rawID)
	if err != nil {
		return nil, err
	}
	if indexes == nil {
		return nil, apperr.Validation("imageIndexes array is required")
	}

	seen := map[int]bool{}
	var valid []int
	for _, i := range indexes {
		if i >= 0 && i < len(r.Images) && !seen[i] {
			seen[i] = true
			valid = append(valid, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))

	images := append([]report.Image{}, r.Images...)
	removed := make([]RemovedImage, 0, len(valid))
	for _, i := range valid {
		img := images[i]
		deleted := s.media.Remove(ctx, img.PublicID)
		removed = append([]RemovedImage{{Image: img, Index: i, StorageDeleted: deleted}}, removed...)
		images = append(images[:i], images[i+1:]...)
	}

	remaining := len(r.Images)
	if len(valid) > 0 {
		updated, err := s.repo.Update(ctx, r.ID, repository.Patch{Images: &images})
		if err != nil {
			return nil, apperr.Internal("Failed to remove images", err)
		}
		remaining = len(updated.Images)
	}
	return &BulkRemoval{RemovedImages: removed, RemainingImages: remaining}, nil
}

type ImageView struct {
	report.Image
	Index       int    `json:"index"`
	DownloadURL string `json:"downloadUrl"`
}

type ImageList struct {
	ReportTitle string      `json:"reportTitle"`
	Images      []ImageView `json:"images"`
	Total       int         `json:"total"`
}

func (s *Service) Images(ctx context.Context, rawID string) (*ImageList, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	out := &ImageList{ReportTitle: r.Title, Images: make([]ImageView, 0, len(r.Images)), Total: len(r.Images)}
	for i, img := range r.Images {
		out.Images = append(out.Images, ImageView{Image: img, Index: i, DownloadURL: s.media.DownloadURL(ctx, img)})
	}
	return out, nil
}

func (s *Service) Image(ctx context.Context, rawID, rawIndex string) (*ImageView, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	idx, err := strconv.Atoi(rawIndex)
	if err != nil || idx < 0 || idx >= len(r.Images) {
		return nil, apperr.Validation("Invalid image index")
	}
	img := r.Images[idx]
	return &ImageView{Image: img, Index: idx, DownloadURL: s.media.DownloadURL(ctx, img)}, nil
}

type SuggestResult struct {
	*repository.Suggestions
	Query string `json:"query"`
}

// Suggestions returns categories, statuses and recent titles matching term.
// Terms shorter than two characters yield empty lists.
func (s *Service) Suggestions(ctx context.Context, caller *models.User, term string) (*SuggestResult, error) {
	term = strings.TrimSpace(term)
	empty := &repository.Suggestions{Categories: []string{}, Statuses: []string{}, Titles: []string{}}
	if len([]rune(term)) < 2 {
		return &SuggestResult{Suggestions: empty, Query: term}, nil
	}
	sug, err := s.repo.Suggest(ctx, term, ownerScope(caller))
	if err != nil {
		return nil, apperr.Internal("Failed to get search suggestions", err)
	}
	return &SuggestResult{Suggestions: sug, Query: term}, nil
}

// Overview aggregates the reports visible to caller.
func (s *Service) Overview(ctx context.Context, caller *models.User) (*repository.Overview, error) {
	ov, err := s.repo.Overview(ctx, ownerScope(caller), s.now())
	if err != nil {
		return nil, apperr.Internal("Failed to get statistics", err)
	}
	return ov, nil
}

type Totals struct {
	All                  int64 `json:"all"`
	Recent               int64 `json:"recent"`
	WithImages           int64 `json:"withImages"`
	PercentageWithImages int64 `json:"percentageWithImages"`
}

type Summary struct {
	ByStatus   []repository.Bucket `json:"byStatus"`
	ByCategory []repository.Bucket `json:"byCategory"`
	Totals     Totals              `json:"totals"`
}

func (s *Service) Summary(ctx context.Context, caller *models.User) (*Summary, error) {
	ov, err := s.Overview(ctx, caller)
	if err != nil {
		return nil, err
	}
	return &Summary{
		ByStatus:   ov.ByStatus,
		ByCategory: ov.ByCategory,
		Totals: Totals{
			All:                  ov.Total,
			Recent:               ov.Recent,
			WithImages:           ov.WithImages,
			PercentageWithImages: Percentage(ov.WithImages, ov.Total),
		},
	}, nil
}

// Percentage returns part/total rounded to the nearest whole percent, or 0
// when total is 0.
func Percentage(part, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return (part*200 + total) / (total * 2)
}

func ownerScope(caller *models.User) *primitive.ObjectID {
	if caller.IsAdmin() {
		return nil
	}
	id := caller.ID
	return &id
}

func (s *Service) load(ctx context.Context, rawID string) (*report.Report, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(rawID))
	if err != nil {
		return nil, apperr.NotFound("Report not found")
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Report not found")
		}
		return nil, apperr.Internal("Failed to fetch report", err)
	}
	return r, nil
}

func (s *Service) loadModifiable(ctx context.Context, caller *models.User, rawID string) (*report.Report, error) {
	r, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !caller.CanModify(r.CreatedBy) {
		return nil, apperr.Forbidden("Not authorized to modify this report")
	}
	return r, nil
}

// discard removes images uploaded for a write that did not commit.
func (s *Service) discard(ctx context.Context, images []report.Image) {
	for _, img := range images {
		s.media.Remove(ctx, img.PublicID)
	}
}

func (s *Service) view(ctx context.Context, r *report.Report) (*report.View, error) {
	views, err := s.resolve(ctx, []repository.Match{{Report: *r}})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// resolve denormalizes owner and assignee summaries in one directory call.
func (s *Service) resolve(ctx context.Context, matches []repository.Match) ([]report.View, error) {
	ids := make([]primitive.ObjectID, 0, len(matches)*2)
	seen := map[primitive.ObjectID]bool{}
	add := func(id primitive.ObjectID) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range matches {
		add(m.Report.CreatedBy)
		if m.Report.AssignedTo != nil {
			add(*m.Report.AssignedTo)
		}
	}
	summaries, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Failed to resolve users", err)
	}
	summary := func(id primitive.ObjectID) *models.UserSummary {
		if sum, ok := summaries[id]; ok {
			return sum
		}
		return &models.UserSummary{ID: id}
	}

	out := make([]report.View, 0, len(matches))
	for _, m := range matches {
		v := report.View{Report: m.Report, Score: m.Score, CreatedBy: summary(m.Report.CreatedBy)}
		if m.Report.AssignedTo != nil {
			v.AssignedTo = summary(*m.Report.AssignedTo)
		}
		out = append(out, v)
	}
	return out, nil
}
