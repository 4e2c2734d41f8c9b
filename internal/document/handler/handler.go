// Package handler exposes the lifecycle service over HTTP.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/export"
	"github.com/qmdoc/doccontrol/internal/identity"
	"github.com/qmdoc/doccontrol/internal/lifecycle"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the document API. Routes expect the auth middleware to
// have stored token claims under "claims".
type Handler struct {
	svc       *lifecycle.Service
	uploadDir string
	now       func() time.Time
}

// New returns a handler that stages uploads below uploadDir ("" for the
// system temp dir).
func New(svc *lifecycle.Service, uploadDir string) *Handler {
	return &Handler{svc: svc, uploadDir: uploadDir, now: time.Now}
}

// Register mounts the document routes under rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/documents")
	d.GET("", h.Search)
	d.POST("", h.Import)
	d.GET("/export.xlsx", h.Export)
	d.GET("/:id", h.Details)
	d.PATCH("/:id", h.EditMetadata)
	d.GET("/:id/ui-state", h.UIState)
	d.GET("/:id/audit", h.Audit)
	d.GET("/:id/assignees", h.Assignees)
	d.PUT("/:id/assignees", h.AssignRoles)
	d.POST("/:id/actions/:action", h.Action)
	d.POST("/:id/check-in", h.CheckIn)
	d.POST("/:id/comments", h.Comment)
	d.POST("/:id/print", h.Print)
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrForbidden), errors.Is(err, document.ErrSeparationOfDuties):
		return http.StatusForbidden
	case errors.Is(err, document.ErrInvalidTransition), errors.Is(err, document.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, document.ErrInvalidInput), errors.Is(err, document.ErrSignatureMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, document.ErrArtifactGeneration):
		return http.StatusBadGateway
	case errors.Is(err, document.ErrLocked):
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if d, ok := document.AsDenial(err); ok {
		c.JSON(status, gin.H{"allowed": false, "code": d.Code(), "reason": d.Reason})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": document.ErrorCode(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// actor resolves the caller from the token claims, aborting with 401 when
// there is none.
func actor(c *gin.Context) (document.Actor, bool) {
	v, _ := c.Get("claims")
	claims, _ := v.(map[string]interface{})
	a, err := identity.ActorFromClaims(claims)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return document.Actor{}, false
	}
	return a, true
}

// stage saves an uploaded file under its original base name in a fresh
// directory. The caller removes the directory.
func (h *Handler) stage(c *gin.Context, fh *multipart.FileHeader) (dir, path string, err error) {
	dir, err = os.MkdirTemp(h.uploadDir, "upload-*")
	if err != nil {
		return "", "", err
	}
	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path = filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		_ = os.RemoveAll(dir)
		return "", "", err
	}
	return dir, path, nil
}

// Search handles GET /documents?q=&status=&type=&include_archived=&limit=
func (h *Handler) Search(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	q := repository.Query{Text: c.Query("q")}
	if raw := c.Query("status"); raw != "" {
		st, err := document.ParseStatus(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.Status = st
	}
	if raw := c.Query("type"); raw != "" {
		t, err := document.ParseType(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		q.Type = t
	}
	q.IncludeArchived, _ = strconv.ParseBool(c.DefaultQuery("include_archived", "false"))
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		q.Limit = n
	}
	list, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []document.Summary{}
	}
	c.JSON(http.StatusOK, list)
}

// Export streams the full register, retired documents included.
func (h *Handler) Export(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	list, err := h.svc.Search(c.Request.Context(), repository.Query{IncludeArchived: true})
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteRegister(&buf, list, h.svc.Permissions().Types(), h.now()); err != nil {
		fail(c, err)
		return
	}
	name := fmt.Sprintf("register-%s.xlsx", h.now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Import handles a multipart upload ("file" plus optional id, title, type
// and owner fields).
func (h *Handler) Import(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("missing file: %w", err))
		return
	}
	meta := repository.NewDocument{
		ID:      c.PostForm("id"),
		Title:   c.PostForm("title"),
		OwnerID: c.PostForm("owner"),
	}
	if raw := c.PostForm("type"); raw != "" {
		if meta.Type, err = document.ParseType(raw); err != nil {
			badRequest(c, err)
			return
		}
	}
	dir, path, err := h.stage(c, fh)
	if err != nil {
		fail(c, err)
		return
	}
	defer os.RemoveAll(dir)

	res, err := h.svc.Create(c.Request.Context(), meta, path, a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.publicResult(res))
}

func (h *Handler) Details(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	d, err := h.svc.GetDetails(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicDetails(d))
}

func (h *Handler) UIState(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	st, err := h.svc.UIState(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) Audit(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicTrail(entries))
}

func (h *Handler) Assignees(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	as, err := h.svc.Assignees(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, as)
}

// AssignRoles replaces the assignments: {"assignees": {"REVIEWER": ["u1"]}, "reason": "..."}.
func (h *Handler) AssignRoles(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Assignees map[string][]string `json:"assignees" binding:"required"`
		Reason    string              `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	as := make(document.Assignees, len(req.Assignees))
	for role, ids := range req.Assignees {
		r, err := document.ParseRole(role)
		if err != nil {
			fail(c, err)
			return
		}
		as[r] = append(as[r], ids...)
	}
	res, err := h.svc.AssignRoles(c.Request.Context(), c.Param("id"), a, as, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicResult(res))
}

type actionRequest struct {
	Reason string `json:"reason" form:"reason"`
	Target string `json:"target" form:"target"`
	// SignedArtifactPath is refused: the signed artifact must be uploaded.
	SignedArtifactPath string `json:"signed_artifact_path" form:"signed_artifact_path"`
}

// Action runs one status-changing action. The body is JSON, or multipart
// with the signed artifact uploaded as "signed". Server-side paths are
// never accepted.
func (h *Handler) Action(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	act, err := workflow.ParseAction(c.Param("action"))
	if err != nil {
		fail(c, err)
		return
	}

	var body actionRequest
	multipartBody := c.ContentType() == "multipart/form-data"
	if multipartBody {
		if err := c.ShouldBind(&body); err != nil {
			badRequest(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if body.SignedArtifactPath != "" {
		fail(c, fmt.Errorf("%w: signed_artifact_path is not accepted; upload the signed file as multipart field \"signed\"", document.ErrInvalidInput))
		return
	}

	req := lifecycle.Request{
		Action:     act,
		DocumentID: c.Param("id"),
		Actor:      a,
		Reason:     body.Reason,
	}
	if multipartBody {
		if fh, ferr := c.FormFile("signed"); ferr == nil {
			dir, path, err := h.stage(c, fh)
			if err != nil {
				fail(c, err)
				return
			}
			defer os.RemoveAll(dir)
			req.SignedArtifactPath = path
		}
	}
	if body.Target != "" {
		if req.Target, err = document.ParseStatus(body.Target); err != nil {
			fail(c, err)
			return
		}
	}
	res, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicResult(res))
}

// CheckIn stores a new working artifact uploaded as "file".
func (h *Handler) CheckIn(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("missing file: %w", err))
		return
	}
	dir, path, err := h.stage(c, fh)
	if err != nil {
		fail(c, err)
		return
	}
	defer os.RemoveAll(dir)

	res, err := h.svc.CheckIn(c.Request.Context(), c.Param("id"), a, path, filepath.Base(path))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicResult(res))
}

func (h *Handler) EditMetadata(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Title *string `json:"title"`
		Type  *string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m := lifecycle.Metadata{Title: req.Title}
	if req.Type != nil {
		t, err := document.ParseType(*req.Type)
		if err != nil {
			fail(c, err)
			return
		}
		m.Type = &t
	}
	res, err := h.svc.EditMetadata(c.Request.Context(), c.Param("id"), a, m)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publicResult(res))
}

func (h *Handler) Comment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cm, err := h.svc.Comment(c.Request.Context(), c.Param("id"), a, req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// Print returns the watermarked controlled copy as an attachment; the copy
// number is in X-Copy-Number.
func (h *Handler) Print(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	cp, err := h.svc.Print(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("X-Copy-Number", strconv.Itoa(cp.Count))
	c.Header("X-Watermark", strings.ReplaceAll(cp.Watermark, "\n", " "))
	c.FileAttachment(cp.Path, filepath.Base(cp.Path))
}
