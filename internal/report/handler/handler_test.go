package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/communityconnect/connect/backend/go-services/internal/media"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
	"github.com/communityconnect/connect/backend/go-services/internal/report/service"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) ReportCreated(report.View)                             {}
func (nopNotifier) StatusChanged(report.View, report.Status, report.Status) {}

type memStorage struct{ n int }

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	_, err := io.Copy(io.Discard, r)
	m.n++
	return "http://storage/" + key, err
}

func (m *memStorage) Delete(context.Context, string) error {
	m.n--
	return nil
}

type env struct {
	router   *gin.Engine
	resident *models.User
	other    *models.User
	admin    *models.User
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	dir := users.NewService(users.NewMemoryRepo())
	svc := service.New(repository.NewMemoryRepo(), dir, media.NewManager(&memStorage{}), nopNotifier{})

	e := &env{router: gin.New()}
	var err error
	e.resident, err = dir.Provision(ctx, users.SyncInput{ExternalID: "r", Email: "resident@community.com"}, models.RoleResident)
	require.NoError(t, err)
	e.other, err = dir.Provision(ctx, users.SyncInput{ExternalID: "o", Email: "other@community.com"}, models.RoleResident)
	require.NoError(t, err)
	e.admin, err = dir.Provision(ctx, users.SyncInput{ExternalID: "a", Email: "admin@community.com"}, models.RoleAdmin)
	require.NoError(t, err)

	RegisterReportRoutes(e.router.Group("/api/reports", middleware.Identity(dir)), svc)
	return e
}

func (e *env) do(t *testing.T, u *models.User, method, path string, body io.Reader, contentType string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if u != nil {
		req.Header.Set("X-User-Id", u.ID.Hex())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (e *env) doJSON(t *testing.T, u *models.User, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return e.do(t, u, method, path, r, "application/json")
}

const potholeJSON = `{"title":"Pothole","description":"Large pothole on Main St","category":"Infrastructure",
"location":{"address":"Main St","coordinates":{"latitude":-1.29,"longitude":36.82}}}`

func multipartBody(t *testing.T, fields map[string]string, images int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i := 0; i < images; i++ {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="images"; filename="photo.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("jpeg-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func createReport(t *testing.T, e *env, u *models.User, images int) string {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{
		"title":       "Pothole",
		"description": "Large pothole on Main St",
		"category":    "Infrastructure",
		"location":    `{"address":"Main St","coordinates":{"latitude":-1.29,"longitude":36.82}}`,
	}, images)
	code, out := e.do(t, u, http.MethodPost, "/api/reports", body, ct)
	require.Equal(t, http.StatusCreated, code, out)
	return out["data"].(map[string]interface{})["id"].(string)
}

func TestCreateJSON(t *testing.T) {
	e := setup(t)
	code, out := e.doJSON(t, e.resident, http.MethodPost, "/api/reports", potholeJSON)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "Report created successfully", out["message"])
	require.Equal(t, "resident", out["userRole"])
	require.EqualValues(t, 0, out["imagesCount"])
	data := out["data"].(map[string]interface{})
	require.Equal(t, "Open", data["status"])
	require.Equal(t, "Medium", data["priority"])
	require.Empty(t, data["images"])
	require.Equal(t, "resident@community.com", data["createdBy"].(map[string]interface{})["email"])
}

func TestCreateMultipartWithImages(t *testing.T) {
	e := setup(t)
	body, ct := multipartBody(t, map[string]string{
		"title":       "Pothole",
		"description": "Large pothole on Main St",
		"category":    "Infrastructure",
		"location":    `{"address":"Main St","coordinates":{"latitude":-1.29,"longitude":36.82}}`,
	}, 2)
	code, out := e.do(t, e.resident, http.MethodPost, "/api/reports", body, ct)
	require.Equal(t, http.StatusCreated, code, out)
	require.Equal(t, "Report created successfully with 2 images", out["message"])
	images := out["data"].(map[string]interface{})["images"].([]interface{})
	require.Len(t, images, 2)
}

func TestCreateValidation(t *testing.T) {
	e := setup(t)
	code, out := e.doJSON(t, e.resident, http.MethodPost, "/api/reports", `{"title":"","category":"Weather","location":"not json"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, out["success"])
	require.Equal(t, "Invalid location format", out["message"])

	code, out = e.doJSON(t, e.resident, http.MethodPost, "/api/reports", `{"title":"","category":"Weather","location":{"address":"x","coordinates":{"latitude":0,"longitude":0}}}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.NotEmpty(t, out["errors"])
}

func TestUnauthenticated(t *testing.T) {
	e := setup(t)
	code, out := e.doJSON(t, nil, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, middleware.ReasonMissingIdentity, out["reason"])
}

func TestListAndGet(t *testing.T) {
	e := setup(t)
	id := createReport(t, e, e.resident, 0)
	createReport(t, e, e.other, 0)

	code, out := e.doJSON(t, e.resident, http.MethodGet, "/api/reports?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out["data"], 1)
	pag := out["pagination"].(map[string]interface{})
	require.EqualValues(t, 1, pag["totalReports"])
	require.EqualValues(t, 5, pag["pageSize"])

	code, out = e.doJSON(t, e.admin, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out["data"], 2)
	require.Equal(t, "admin", out["userRole"])

	code, _ = e.doJSON(t, e.other, http.MethodGet, "/api/reports/"+id, "")
	require.Equal(t, http.StatusOK, code)

	code, out = e.doJSON(t, e.resident, http.MethodGet, "/api/reports/nope", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Report not found", out["message"])
}

func TestFixedRoutesAreNotIDs(t *testing.T) {
	e := setup(t)
	createReport(t, e, e.resident, 1)

	code, out := e.doJSON(t, e.resident, http.MethodGet, "/api/reports/search/suggestions?q=pot", "")
	require.Equal(t, http.StatusOK, code)
	data := out["data"].(map[string]interface{})
	require.Equal(t, []interface{}{"Pothole"}, data["titleSuggestions"])
	require.Equal(t, "pot", data["query"])

	code, out = e.doJSON(t, e.resident, http.MethodGet, "/api/reports/stats/overview", "")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, out["data"].(map[string]interface{})["total"])

	code, out = e.doJSON(t, e.resident, http.MethodGet, "/api/reports/stats/summary", "")
	require.Equal(t, http.StatusOK, code)
	totals := out["data"].(map[string]interface{})["totals"].(map[string]interface{})
	require.EqualValues(t, 100, totals["percentageWithImages"])
}

func TestUpdateAndDeleteAuthorization(t *testing.T) {
	e := setup(t)
	id := createReport(t, e, e.resident, 0)

	code, out := e.doJSON(t, e.other, http.MethodPut, "/api/reports/"+id, `{"title":"Mine now"}`)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "Not authorized", out["message"])

	code, out = e.doJSON(t, e.resident, http.MethodPut, "/api/reports/"+id, `{"status":"Resolved"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Open", out["data"].(map[string]interface{})["status"])

	code, out = e.doJSON(t, e.admin, http.MethodPut, "/api/reports/"+id, `{"status":"In Progress","priority":"High"}`)
	require.Equal(t, http.StatusOK, code)
	data := out["data"].(map[string]interface{})
	require.Equal(t, "In Progress", data["status"])
	require.Equal(t, "High", data["priority"])

	code, _ = e.doJSON(t, e.other, http.MethodDelete, "/api/reports/"+id, "")
	require.Equal(t, http.StatusForbidden, code)

	code, out = e.doJSON(t, e.resident, http.MethodDelete, "/api/reports/"+id, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, out["data"].(map[string]interface{})["id"])
}

func TestImageRoutes(t *testing.T) {
	e := setup(t)
	id := createReport(t, e, e.resident, 3)

	code, out := e.doJSON(t, e.resident, http.MethodGet, "/api/reports/"+id+"/images", "")
	require.Equal(t, http.StatusOK, code)
	list := out["data"].(map[string]interface{})
	require.EqualValues(t, 3, list["total"])
	first := list["images"].([]interface{})[0].(map[string]interface{})
	require.NotEmpty(t, first["downloadUrl"])

	code, out = e.doJSON(t, e.resident, http.MethodGet, "/api/reports/"+id+"/images/9", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Invalid image index", out["message"])

	code, out = e.doJSON(t, e.resident, http.MethodDelete, "/api/reports/"+id+"/images", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "imageIndexes array is required", out["message"])

	code, out = e.doJSON(t, e.resident, http.MethodDelete, "/api/reports/"+id+"/images", `{"imageIndexes":[0,2]}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Removed 2 images successfully", out["message"])
	res := out["data"].(map[string]interface{})
	require.EqualValues(t, 1, res["remainingImages"])
	removed := res["removedImages"].([]interface{})
	require.EqualValues(t, 0, removed[0].(map[string]interface{})["index"])
	require.EqualValues(t, 2, removed[1].(map[string]interface{})["index"])

	code, out = e.doJSON(t, e.resident, http.MethodDelete, "/api/reports/"+id+"/images/0", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["data"].(map[string]interface{})["storageDeleted"])

	body, ct := multipartBody(t, nil, 2)
	code, out = e.do(t, e.resident, http.MethodPost, "/api/reports/"+id+"/images", body, ct)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Added 2 images successfully", out["message"])
	require.EqualValues(t, 2, out["data"].(map[string]interface{})["totalImages"])

	body, ct = multipartBody(t, nil, 1)
	code, _ = e.do(t, e.other, http.MethodPost, "/api/reports/"+id+"/images", body, ct)
	require.Equal(t, http.StatusForbidden, code)
}
