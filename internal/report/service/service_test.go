package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/media"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type transition struct {
	from, to report.Status
	email    string
}

type recordingNotifier struct {
	mu          sync.Mutex
	created     []report.View
	transitions []transition
}

func (n *recordingNotifier) ReportCreated(v report.View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, v)
}

func (n *recordingNotifier) StatusChanged(v report.View, from, to report.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, transition{from: from, to: to, email: v.CreatedBy.Email})
}

type memStorage struct {
	mu      sync.Mutex
	keys    map[string]bool
	failDel bool
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = true
	return "http://storage/" + key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	if m.failDel {
		return errors.New("storage unreachable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *repository.MemoryRepo
	users    *users.Service
	store    *memStorage
	notifier *recordingNotifier
	resident *models.User
	other    *models.User
	admin    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		repo:     repository.NewMemoryRepo(),
		users:    users.NewService(users.NewMemoryRepo()),
		store:    &memStorage{keys: map[string]bool{}},
		notifier: &recordingNotifier{},
	}
	f.svc = New(f.repo, f.users, media.NewManager(f.store), f.notifier)

	var err error
	f.resident, err = f.users.Provision(ctx, users.SyncInput{ExternalID: "r", Email: "resident@community.com", Username: "resident"}, models.RoleResident)
	require.NoError(t, err)
	f.other, err = f.users.Provision(ctx, users.SyncInput{ExternalID: "o", Email: "other@community.com"}, models.RoleResident)
	require.NoError(t, err)
	f.admin, err = f.users.Provision(ctx, users.SyncInput{ExternalID: "a", Email: "admin@community.com"}, models.RoleAdmin)
	require.NoError(t, err)
	return f
}

func imageFile(name string) media.File {
	return media.File{
		Name:        name,
		ContentType: "image/jpeg",
		Size:        3,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("img")), nil },
	}
}

func potholeInput() report.CreateInput {
	return report.CreateInput{
		Title:       "Pothole",
		Description: "Large pothole on Main St",
		Category:    "Infrastructure",
		Location:    []byte(`{"address":"Main St","coordinates":{"latitude":-1.29,"longitude":36.82}}`),
	}
}

func TestCreateWithoutImages(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), f.resident, potholeInput(), nil)
	require.NoError(t, err)
	v := res.Report
	require.Equal(t, report.StatusOpen, v.Status)
	require.Empty(t, v.Images)
	require.NotNil(t, v.Images)
	require.Contains(t, v.Tags, "pothole")
	require.Contains(t, v.Tags, "main")
	require.Equal(t, "resident@community.com", v.CreatedBy.Email)
	require.Len(t, f.notifier.created, 1)
}

func TestCreateWithImagesRoundTrip(t *testing.T) {
	f := newFixture(t)
	files := []media.File{imageFile("a.jpg"), imageFile("b.jpg"), imageFile("c.jpg")}
	res, err := f.svc.Create(context.Background(), f.resident, potholeInput(), files)
	require.NoError(t, err)
	require.Equal(t, 3, res.ImagesCount)
	require.Len(t, res.Report.Images, 3)
	for _, img := range res.Report.Images {
		require.NotEmpty(t, img.URL)
		require.NotEmpty(t, img.PublicID)
	}
	stored, err := f.svc.Get(context.Background(), res.Report.ID.Hex())
	require.NoError(t, err)
	require.Len(t, stored.Images, 3)
}

func TestCreateRejectsBadFilesBeforeUpload(t *testing.T) {
	f := newFixture(t)
	bad := imageFile("notes.txt")
	bad.ContentType = "text/plain"
	_, err := f.svc.Create(context.Background(), f.resident, potholeInput(), []media.File{imageFile("a.jpg"), bad})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Empty(t, f.store.keys)
	require.Empty(t, f.notifier.created)
}

func TestListScopesResidentsToOwnReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []*models.User{f.resident, f.resident, f.other} {
		_, err := f.svc.Create(ctx, u, potholeInput(), nil)
		require.NoError(t, err)
	}

	p := ListParams{Page: 1, Limit: 10}
	res, err := f.svc.List(ctx, f.resident, p)
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	for _, v := range res.Data {
		require.Equal(t, f.resident.ID, v.CreatedBy.ID)
	}
	require.Equal(t, models.RoleResident, res.UserRole)

	res, err = f.svc.List(ctx, f.admin, p)
	require.NoError(t, err)
	require.Len(t, res.Data, 3)
	require.EqualValues(t, 3, res.Pagination.TotalReports)
}

func TestListSearchEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.resident, potholeInput(), nil)
	require.NoError(t, err)

	res, err := f.svc.List(ctx, f.resident, ListParams{Page: 1, Limit: 10, Search: "pothole"})
	require.NoError(t, err)
	require.NotNil(t, res.Search.Query)
	require.Equal(t, "pothole", *res.Search.Query)
	require.Equal(t, 1, res.Search.ResultsCount)
	require.Greater(t, res.Data[0].Score, 0.0)

	res, err = f.svc.List(ctx, f.resident, ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Nil(t, res.Search.Query)
}

func TestListHasImagesAndAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.resident.ID
	assignee := f.admin.ID
	f.repo.Put(report.Report{Title: "no images, assigned", CreatedBy: owner, AssignedTo: &assignee, CreatedAt: time.Now()})
	f.repo.Put(report.Report{Title: "images, assigned", CreatedBy: owner, AssignedTo: &assignee, Images: []report.Image{{URL: "u"}}, CreatedAt: time.Now()})
	f.repo.Put(report.Report{Title: "no images, unassigned", CreatedBy: owner, CreatedAt: time.Now()})

	res, err := f.svc.List(ctx, f.admin, ListParams{Page: 1, Limit: 10, HasImages: "false", Assigned: "true"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	require.Equal(t, "no images, assigned", res.Data[0].Title)
	require.Equal(t, "admin@community.com", res.Data[0].AssignedTo.Email)
}

func TestUpdateStatusNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, f.resident, potholeInput(), nil)
	require.NoError(t, err)
	id := created.Report.ID.Hex()

	inProgress := string(report.StatusInProgress)
	_, err = f.svc.Update(ctx, f.admin, id, UpdateInput{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, f.notifier.transitions, 1)

	// same status again is not a transition
	_, err = f.svc.Update(ctx, f.admin, id, UpdateInput{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, f.notifier.transitions, 1)

	resolved := string(report.StatusResolved)
	v, err := f.svc.Update(ctx, f.admin, id, UpdateInput{Status: &resolved})
	require.NoError(t, err)
	require.Equal(t, report.StatusResolved, v.Status)
	require.Len(t, f.notifier.transitions, 2)
	last := f.notifier.transitions[1]
	require.Equal(t, report.StatusInProgress, last.from)
	require.Equal(t, report.StatusResolved, last.to)
	require.Equal(t, "resident@community.com", last.email)
}

func TestUpdateAdminFieldsIgnoredForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, f.resident, potholeInput(), nil)
	require.NoError(t, err)
	id := created.Report.ID.Hex()

	resolved := string(report.StatusResolved)
	title := "Deep pothole near school"
	v, err := f.svc.Update(ctx, f.resident, id, UpdateInput{Status: &resolved, Title: &title})
	require.NoError(t, err)
	require.Equal(t, report.StatusOpen, v.Status)
	require.Equal(t, title, v.Title)
	require.Contains(t, v.Tags, "school")
	require.Empty(t, f.notifier.transitions)

	_, err = f.svc.Update(ctx, f.other, id, UpdateInput{Title: &title})
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	bogus := "Closed"
	_, err = f.svc.Update(ctx, f.admin, id, UpdateInput{Status: &bogus})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assignee := f.admin.ID.Hex()
	v, err = f.svc.Update(ctx, f.admin, id, UpdateInput{AssignedTo: &assignee})
	require.NoError(t, err)
	require.Equal(t, f.admin.ID, v.AssignedTo.ID)

	missing := primitive.NewObjectID().Hex()
	_, err = f.svc.Update(ctx, f.admin, id, UpdateInput{AssignedTo: &missing})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Get(ctx, "not-an-id")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	created, err := f.svc.Create(ctx, f.resident, potholeInput(), nil)
	require.NoError(t, err)
	id := created.Report.ID.Hex()

	_, err = f.svc.Delete(ctx, f.other, id)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	deleted, err := f.svc.Delete(ctx, f.resident, id)
	require.NoError(t, err)
	require.Equal(t, created.Report.ID, deleted)

	_, err = f.svc.Get(ctx, id)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func seedImages(t *testing.T, f *fixture, n int) string {
	t.Helper()
	files := make([]media.File, n)
	for i := range files {
		files[i] = imageFile("img.jpg")
	}
	res, err := f.svc.Create(context.Background(), f.resident, potholeInput(), files)
	require.NoError(t, err)
	require.Len(t, res.Report.Images, n)
	return res.Report.ID.Hex()
}

func TestRemoveImagesBulkUsesOriginalIndexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := seedImages(t, f, 3)
	before, _ := f.svc.Get(ctx, id)
	middle := before.Images[1]

	res, err := f.svc.RemoveImages(ctx, f.resident, id, []int{0, 2, 2, 7})
	require.NoError(t, err)
	require.Len(t, res.RemovedImages, 2)
	require.Equal(t, 0, res.RemovedImages[0].Index)
	require.Equal(t, 2, res.RemovedImages[1].Index)
	require.Equal(t, 1, res.RemainingImages)

	after, _ := f.svc.Get(ctx, id)
	require.Equal(t, []report.Image{middle}, after.Images)
	require.Len(t, f.store.keys, 1)

	_, err = f.svc.RemoveImages(ctx, f.resident, id, nil)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRemoveImageToleratesStorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := seedImages(t, f, 2)
	f.store.failDel = true

	res, err := f.svc.RemoveImage(ctx, f.admin, id, "0")
	require.NoError(t, err)
	require.False(t, res.StorageDeleted)
	require.Equal(t, 1, res.RemainingImages)

	_, err = f.svc.RemoveImage(ctx, f.admin, id, "5")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.RemoveImage(ctx, f.other, id, "0")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestAddImagesAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := seedImages(t, f, 1)

	added, err := f.svc.AddImages(ctx, f.resident, id, []media.File{imageFile("x.jpg")})
	require.NoError(t, err)
	require.Len(t, added.NewImages, 1)
	require.Equal(t, 2, added.TotalImages)

	_, err = f.svc.AddImages(ctx, f.resident, id, nil)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	list, err := f.svc.Images(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	require.Equal(t, list.Images[1].URL, list.Images[1].DownloadURL)

	img, err := f.svc.Image(ctx, id, "1")
	require.NoError(t, err)
	require.Equal(t, 1, img.Index)
}

func TestSuggestionsAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.resident, potholeInput(), []media.File{imageFile("a.jpg")})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.other, potholeInput(), nil)
	require.NoError(t, err)

	sug, err := f.svc.Suggestions(ctx, f.resident, "p")
	require.NoError(t, err)
	require.Empty(t, sug.Titles)

	sug, err = f.svc.Suggestions(ctx, f.resident, "pot")
	require.NoError(t, err)
	require.Equal(t, []string{"Pothole"}, sug.Titles)

	sum, err := f.svc.Summary(ctx, f.resident)
	require.NoError(t, err)
	require.EqualValues(t, 1, sum.Totals.All)
	require.EqualValues(t, 100, sum.Totals.PercentageWithImages)

	sum, err = f.svc.Summary(ctx, f.admin)
	require.NoError(t, err)
	require.EqualValues(t, 2, sum.Totals.All)
	require.EqualValues(t, 50, sum.Totals.PercentageWithImages)
}

func TestPercentage(t *testing.T) {
	require.EqualValues(t, 0, Percentage(0, 0))
	require.EqualValues(t, 33, Percentage(1, 3))
	require.EqualValues(t, 67, Percentage(2, 3))
}
