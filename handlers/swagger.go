package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Community Connect API - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: 'doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document for the public routes. Paths are relative to /api.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "Community Connect API", "version": "v1.0.0" },
  "servers": [ { "url": "/api" } ],
  "components": {
    "securitySchemes": { "userId": { "type": "apiKey", "in": "header", "name": "X-User-Id" } }
  },
  "security": [ { "userId": [] } ],
  "paths": {
    "/auth/sync": {
      "post": { "summary": "Create or refresh the caller's directory record", "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"externalId":{"type":"string"},"email":{"type":"string"},"username":{"type":"string"},"name":{"type":"string"}}}}}},
        "responses": { "200": { "description": "user synced" }, "201": { "description": "user created" }, "400": { "description": "validation failed" } } }
    },
    "/auth/me": { "get": { "summary": "Current user profile", "responses": { "200": { "description": "profile" }, "401": { "description": "unauthenticated" } } } },
    "/auth/users": { "get": { "summary": "List users (admin)", "responses": { "200": { "description": "users" }, "403": { "description": "not an admin" } } } },
    "/auth/promote/{userId}": { "patch": { "summary": "Promote a user to admin", "responses": { "200": { "description": "promoted" } } } },
    "/auth/demote/{userId}": { "patch": { "summary": "Demote an admin to resident", "responses": { "200": { "description": "demoted" } } } },
    "/auth/users/{userId}/toggle-active": { "patch": { "summary": "Activate or deactivate a user", "responses": { "200": { "description": "toggled" } } } },
    "/reports": {
      "get": { "summary": "List reports with filters, search and pagination",
        "parameters": [
          {"name":"status","in":"query","schema":{"type":"string"}},
          {"name":"category","in":"query","schema":{"type":"string"}},
          {"name":"priority","in":"query","schema":{"type":"string"}},
          {"name":"assigned","in":"query","schema":{"type":"string","enum":["true","false"]}},
          {"name":"hasImages","in":"query","schema":{"type":"string","enum":["true","false"]}},
          {"name":"dateFrom","in":"query","schema":{"type":"string"}},
          {"name":"dateTo","in":"query","schema":{"type":"string"}},
          {"name":"daysOld","in":"query","schema":{"type":"integer"}},
          {"name":"search","in":"query","schema":{"type":"string"}},
          {"name":"sortBy","in":"query","schema":{"type":"string"}},
          {"name":"sortOrder","in":"query","schema":{"type":"string","enum":["asc","desc"]}},
          {"name":"page","in":"query","schema":{"type":"integer"}},
          {"name":"limit","in":"query","schema":{"type":"integer"}}
        ],
        "responses": { "200": { "description": "reports" } } },
      "post": { "summary": "Create a report (multipart with up to 5 images, or JSON)", "responses": { "201": { "description": "created" }, "400": { "description": "validation failed" } } }
    },
    "/reports/search/suggestions": { "get": { "summary": "Search suggestions", "responses": { "200": { "description": "suggestions" } } } },
    "/reports/stats/overview": { "get": { "summary": "Report statistics", "responses": { "200": { "description": "statistics" } } } },
    "/reports/stats/summary": { "get": { "summary": "Report totals", "responses": { "200": { "description": "totals" } } } },
    "/reports/{id}": {
      "get": { "summary": "Get a report", "responses": { "200": { "description": "report" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update a report", "responses": { "200": { "description": "updated" }, "403": { "description": "not authorized" } } },
      "delete": { "summary": "Delete a report", "responses": { "200": { "description": "deleted" }, "403": { "description": "not authorized" } } }
    },
    "/reports/{id}/images": {
      "get": { "summary": "List report images", "responses": { "200": { "description": "images" } } },
      "post": { "summary": "Add images to a report", "responses": { "200": { "description": "added" } } },
      "delete": { "summary": "Remove images by index", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"imageIndexes":{"type":"array","items":{"type":"integer"}}}}}}}, "responses": { "200": { "description": "removed" } } }
    },
    "/reports/{id}/images/{imageIndex}": {
      "get": { "summary": "Get one image", "responses": { "200": { "description": "image" } } },
      "delete": { "summary": "Remove one image", "responses": { "200": { "description": "removed" } } }
    },
    "/admin/stats": { "get": { "summary": "Dashboard statistics", "responses": { "200": { "description": "statistics" } } } },
    "/admin/reports": { "get": { "summary": "All reports", "responses": { "200": { "description": "reports" } } } },
    "/admin/users": { "get": { "summary": "All users", "responses": { "200": { "description": "users" } } } },
    "/admin/users/{id}/role": { "patch": { "summary": "Set a user's role", "responses": { "200": { "description": "updated" } } } },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
