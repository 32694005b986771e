// Package handler exposes the report service over HTTP. Every route expects
// middleware.Identity to have run.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/communityconnect/connect/backend/go-services/internal/media"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/internal/report/service"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const imagesField = "images"

// RegisterReportRoutes mounts the report routes on rg, which is /api/reports.
func RegisterReportRoutes(rg *gin.RouterGroup, svc *service.Service) {
	h := &reportHandler{svc: svc}

	// fixed paths first so they are not taken for report ids
	rg.GET("/search/suggestions", h.suggestions)
	rg.GET("/stats/overview", h.overview)
	rg.GET("/stats/summary", h.summary)

	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.remove)

	rg.GET("/:id/images", h.images)
	rg.POST("/:id/images", h.addImages)
	rg.DELETE("/:id/images", h.removeImages)
	rg.GET("/:id/images/:imageIndex", h.image)
	rg.DELETE("/:id/images/:imageIndex", h.removeImage)
}

type reportHandler struct {
	svc *service.Service
}

func (h *reportHandler) list(c *gin.Context) {
	p := service.ParseListParams(c.Query, service.DefaultLimit)
	res, err := h.svc.List(c.Request.Context(), middleware.CurrentUser(c), p)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Reports fetched successfully",
		"data":       res.Data,
		"pagination": res.Pagination,
		"search":     res.Search,
		"filters":    res.Filters,
		"userRole":   res.UserRole,
	})
}

func (h *reportHandler) suggestions(c *gin.Context) {
	res, err := h.svc.Suggestions(c.Request.Context(), middleware.CurrentUser(c), c.Query("q"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Suggestions fetched successfully", res, nil)
}

func (h *reportHandler) overview(c *gin.Context) {
	ov, err := h.svc.Overview(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Statistics fetched successfully", gin.H{
		"byStatus":   ov.ByStatus,
		"byCategory": ov.ByCategory,
		"byPriority": ov.ByPriority,
		"withImages": ov.WithImages,
		"assigned":   ov.Assigned,
		"recent":     ov.Recent,
		"total":      ov.Total,
	}, nil)
}

func (h *reportHandler) summary(c *gin.Context) {
	caller := middleware.CurrentUser(c)
	sum, err := h.svc.Summary(c.Request.Context(), caller)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Statistics fetched successfully", sum, gin.H{"userRole": caller.Role})
}

func (h *reportHandler) get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Report fetched successfully", v, nil)
}

func (h *reportHandler) create(c *gin.Context) {
	caller := middleware.CurrentUser(c)
	in, files, err := bindCreate(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	res, err := h.svc.Create(c.Request.Context(), caller, in, files)
	if err != nil {
		response.Fail(c, err)
		return
	}
	msg := "Report created successfully"
	if res.ImagesCount > 0 {
		msg += fmt.Sprintf(" with %d images", res.ImagesCount)
	}
	extra := gin.H{"userRole": caller.Role, "imagesCount": res.ImagesCount}
	if len(res.FailedUploads) > 0 {
		extra["failedUploads"] = res.FailedUploads
	}
	response.JSON(c, http.StatusCreated, msg, res.Report, extra)
}

// bindCreate reads a create request from a multipart form with optional
// image files, or from a JSON body without images.
func bindCreate(c *gin.Context) (report.CreateInput, []media.File, error) {
	var in report.CreateInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindWith(&in, binding.FormMultipart); err != nil {
			return in, nil, apperr.Validation("Invalid form data", err.Error())
		}
		if loc := strings.TrimSpace(c.PostForm("location")); loc != "" {
			in.Location = json.RawMessage(loc)
		}
		files, err := formFiles(c)
		return in, files, err
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		return in, nil, apperr.Validation("Invalid request body", err.Error())
	}
	return in, nil, nil
}

func formFiles(c *gin.Context) ([]media.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.Validation("Invalid form data", err.Error())
	}
	headers := form.File[imagesField]
	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, media.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files, nil
}

func (h *reportHandler) update(c *gin.Context) {
	var in service.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Fail(c, apperr.Validation("Invalid request body", err.Error()))
		return
	}
	v, err := h.svc.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), in)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Report updated successfully", v, nil)
}

func (h *reportHandler) remove(c *gin.Context) {
	id, err := h.svc.Delete(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Report deleted successfully", gin.H{"id": id.Hex()}, nil)
}

func (h *reportHandler) images(c *gin.Context) {
	list, err := h.svc.Images(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Images fetched successfully", list, nil)
}

func (h *reportHandler) image(c *gin.Context) {
	img, err := h.svc.Image(c.Request.Context(), c.Param("id"), c.Param("imageIndex"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "Image fetched successfully", img, nil)
}

func (h *reportHandler) addImages(c *gin.Context) {
	var files []media.File
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var err error
		if files, err = formFiles(c); err != nil {
			response.Fail(c, err)
			return
		}
	}
	res, err := h.svc.AddImages(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), files)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fmt.Sprintf("Added %d images successfully", len(res.NewImages)), res, nil)
}

func (h *reportHandler) removeImage(c *gin.Context) {
	res, err := h.svc.RemoveImage(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), c.Param("imageIndex"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	msg := "Image removed successfully"
	if !res.StorageDeleted {
		msg += " (storage deletion failed)"
	}
	response.JSON(c, http.StatusOK, msg, res, nil)
}

func (h *reportHandler) removeImages(c *gin.Context) {
	var body struct {
		ImageIndexes []int `json:"imageIndexes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Fail(c, apperr.Validation("imageIndexes array is required"))
		return
	}
	res, err := h.svc.RemoveImages(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.ImageIndexes)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fmt.Sprintf("Removed %d images successfully", len(res.RemovedImages)), res, nil)
}
