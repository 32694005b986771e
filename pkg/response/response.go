// Package response writes the {success, message, ...} JSON envelope shared by all endpoints.
package response

import (
	"errors"
	"sync/atomic"

	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

var development atomic.Bool

// SetDevelopment controls whether internal error details are exposed to clients.
func SetDevelopment(v bool) { development.Store(v) }

// JSON writes a success envelope. Keys in extra are merged at the top level.
func JSON(c *gin.Context, status int, message string, data interface{}, extra gin.H) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail writes a failure envelope for err and aborts the chain.
func Fail(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal("Something went wrong!", err)
	}
	status := apperr.Status(e.Kind)
	body := gin.H{"success": false, "message": e.Message}
	switch e.Kind {
	case apperr.KindValidation:
		errs := e.Errors
		if len(errs) == 0 {
			errs = []string{e.Message}
		}
		body["errors"] = errs
	case apperr.KindUnauthenticated:
		if e.Reason != "" {
			body["reason"] = e.Reason
		}
	case apperr.KindInternal, apperr.KindUpstream:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		if development.Load() && e.Err != nil {
			body["error"] = e.Err.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}
