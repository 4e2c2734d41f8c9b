package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
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
    <title>qmdoc document control - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "qmdoc document control", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Denial": { "type": "object", "properties": { "allowed": {"type":"boolean"}, "code": {"type":"string"}, "reason": {"type":"string"} } },
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "code": {"type":"string"} } },
      "ActionRequest": { "type": "object", "properties": { "reason": {"type":"string"}, "target": {"type":"string","enum":["ARCHIVED","OBSOLETE"]} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v1/me": {
      "get": { "summary": "Actor resolved from the bearer token", "responses": { "200": { "description": "actor id, name and system roles" } } }
    },
    "/api/v1/documents": {
      "get": {
        "summary": "Search the register",
        "parameters": [
          { "name": "q", "in": "query", "schema": {"type":"string"} },
          { "name": "status", "in": "query", "schema": {"type":"string"} },
          { "name": "type", "in": "query", "schema": {"type":"string"} },
          { "name": "include_archived", "in": "query", "schema": {"type":"boolean"} },
          { "name": "limit", "in": "query", "schema": {"type":"integer"} }
        ],
        "responses": { "200": { "description": "document summaries" } }
      },
      "post": {
        "summary": "Import a file as a DRAFT v1.0 document",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"},"id":{"type":"string"},"title":{"type":"string"},"type":{"type":"string"},"owner":{"type":"string"}},"required":["file"]}}}},
        "responses": { "201": { "description": "created" }, "403": { "description": "denied" } }
      }
    },
    "/api/v1/documents/export.xlsx": {
      "get": { "summary": "Register as an XLSX workbook", "responses": { "200": { "description": "workbook" } } }
    },
    "/api/v1/documents/{id}": {
      "get": { "summary": "Document details", "responses": { "200": { "description": "details" }, "404": { "description": "unknown document" }, "500": { "description": "storage inconsistency" } } },
      "patch": { "summary": "Edit title or type", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"type":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated" } } }
    },
    "/api/v1/documents/{id}/ui-state": {
      "get": { "summary": "Controls the caller should see", "responses": { "200": { "description": "ui state" } } }
    },
    "/api/v1/documents/{id}/audit": {
      "get": { "summary": "Audit trail in insertion order", "responses": { "200": { "description": "entries" } } }
    },
    "/api/v1/documents/{id}/assignees": {
      "get": { "summary": "Per-document role assignments", "responses": { "200": { "description": "assignees" } } },
      "put": { "summary": "Replace role assignments", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"assignees":{"type":"object"},"reason":{"type":"string"}}}}}}, "responses": { "200": { "description": "assigned" }, "403": { "description": "denied" } } }
    },
    "/api/v1/documents/{id}/actions/{action}": {
      "post": {
        "summary": "Run a workflow action (submit_review, request_approval, publish, back_to_draft, archive, start_workflow, abort_workflow, create_revision, extend_review)",
        "requestBody": { "content": {
          "application/json": { "schema": { "$ref": "#/components/schemas/ActionRequest" } },
          "multipart/form-data": { "schema": {"type":"object","properties":{"signed":{"type":"string","format":"binary"},"reason":{"type":"string"},"target":{"type":"string"}}}}
        }},
        "responses": {
          "200": { "description": "transition result" },
          "403": { "description": "forbidden or separation of duties", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Denial" } } } },
          "409": { "description": "invalid transition" },
          "422": { "description": "missing reason or signature" },
          "423": { "description": "another transition holds the document" },
          "502": { "description": "artifact generation failed" }
        }
      }
    },
    "/api/v1/documents/{id}/check-in": {
      "post": { "summary": "Upload a new working artifact", "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}}, "responses": { "200": { "description": "checked in" } } }
    },
    "/api/v1/documents/{id}/comments": {
      "post": { "summary": "Add a comment", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"body":{"type":"string"}}}}}}, "responses": { "201": { "description": "comment" } } }
    },
    "/api/v1/documents/{id}/print": {
      "post": { "summary": "Issue a watermarked controlled copy", "responses": { "200": { "description": "PDF attachment, copy number in X-Copy-Number" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
