package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/identity"
	"github.com/qmdoc/doccontrol/internal/lifecycle"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/middleware"
)

const secret = "handler-test-secret-0123456789"

type server struct {
	t      *testing.T
	engine *gin.Engine
	tokens map[string]string
	root   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store, err := repository.Open(filepath.Join(dir, "qm.sqlite"), filepath.Join(dir, "files"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := lifecycle.New(store, workflow.Default(), policy.New())
	ver, err := identity.NewHS256Verifier(secret)
	require.NoError(t, err)

	g := gin.New()
	api := g.Group("/api/v1", middleware.AuthMiddleware(ver))
	New(svc, t.TempDir()).Register(api)

	s := &server{t: t, engine: g, tokens: map[string]string{}, root: filepath.Join(dir, "files")}
	for id, role := range map[string]document.SystemRole{
		"alice": document.SystemUser,
		"rita":  document.SystemUser,
		"paul":  document.SystemUser,
		"quinn": document.SystemQMB,
		"vera":  document.SystemViewer,
	} {
		tok, err := identity.IssueToken(secret, document.Actor{ID: id, Roles: []document.SystemRole{role}}, id, time.Hour)
		require.NoError(t, err)
		s.tokens[id] = tok
	}
	return s
}

func (s *server) do(actor, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, "/api/v1"+path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok, ok := s.tokens[actor]; ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *server) json(actor, method, path string, v interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var body []byte
	if v != nil {
		var err error
		body, err = json.Marshal(v)
		require.NoError(s.t, err)
	}
	return s.do(actor, method, path, body, "application/json")
}

// upload posts a multipart form with one file part.
func (s *server) upload(actor, path, field, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(s.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())
	return s.do(actor, http.MethodPost, path, buf.Bytes(), mw.FormDataContentType())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed imports A01VA004 as alice; quinn assigns rita and paul.
func (s *server) seed() string {
	s.t.Helper()
	w := s.upload("alice", "/documents", "file", "A01VA004_Cleaning.pdf", "%PDF draft", map[string]string{"title": "Cleaning"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[lifecycle.Result](s.t, w)
	require.Equal(s.t, "A01VA004", res.Document.ID)

	w = s.json("quinn", http.MethodPut, "/documents/A01VA004/assignees", gin.H{
		"assignees": gin.H{"AUTHOR": []string{"alice"}, "reviewer": []string{"rita"}, "APPROVER": []string{"paul"}},
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return res.Document.ID
}

func TestMissingToken(t *testing.T) {
	s := newServer(t)
	w := s.do("nobody", http.MethodGet, "/documents", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestImportAndRead(t *testing.T) {
	s := newServer(t)
	id := s.seed()

	w := s.do("vera", http.MethodGet, "/documents/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode[document.Details](t, w)
	assert.Equal(t, "Cleaning", d.Document.Title)
	assert.Equal(t, document.StatusDraft, d.Document.Status)
	assert.Equal(t, "rita", d.AssigneeNames["rita"])

	w = s.do("vera", http.MethodGet, "/documents?q=clean", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]document.Summary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	w = s.do("vera", http.MethodGet, "/documents?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("vera", http.MethodGet, "/documents/NOPE", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]interface{}](t, w)["code"])
}

func TestViewerCannotImport(t *testing.T) {
	s := newServer(t)
	w := s.upload("vera", "/documents", "file", "A01VA004_Cleaning.pdf", "%PDF", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "forbidden", body["code"])
}

func TestSigningChainOverHTTP(t *testing.T) {
	s := newServer(t)
	id := s.seed()

	// no signed artifact
	w := s.json("alice", http.MethodPost, "/documents/"+id+"/actions/submit_review", gin.H{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "signature_missing", decode[map[string]interface{}](t, w)["code"])

	w = s.upload("alice", "/documents/"+id+"/actions/submit", "signed", "author.pdf", "%PDF signed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, document.StatusInReview, decode[lifecycle.Result](t, w).To)

	// the author may not also review
	w = s.upload("alice", "/documents/"+id+"/actions/request_approval", "signed", "review.pdf", "%PDF", nil)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = s.upload("rita", "/documents/"+id+"/actions/request_approval", "signed", "review.pdf", "%PDF", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do("paul", http.MethodGet, "/documents/"+id+"/ui-state", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	ui := decode[map[string]interface{}](t, w)
	assert.Equal(t, true, ui["show_sign"])
	assert.Equal(t, "publish", ui["sign_action"])

	w = s.upload("paul", "/documents/"+id+"/actions/publish", "signed", "approval.pdf", "%PDF", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[lifecycle.Result](t, w)
	assert.Equal(t, document.StatusPublished, res.To)
	assert.Equal(t, "2.0", res.Document.VersionLabel())

	w = s.do("vera", http.MethodGet, "/documents/"+id+"/audit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]document.AuditEntry](t, w)
	var actions []string
	for _, e := range entries {
		if e.Result == document.ResultSuccess {
			actions = append(actions, e.Action)
		}
	}
	assert.Equal(t, []string{"create", "assign_roles", "submit_review", "request_approval", "publish"}, actions)

	w = s.do("vera", http.MethodPost, "/documents/"+id+"/print", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-Copy-Number"))
	assert.Contains(t, w.Header().Get("X-Watermark"), "CONTROLLED COPY "+id+" v2.0 vera")
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestActionErrors(t *testing.T) {
	s := newServer(t)
	id := s.seed()

	w := s.json("quinn", http.MethodPost, "/documents/"+id+"/actions/teleport", gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.json("quinn", http.MethodPost, "/documents/"+id+"/actions/publish", gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "invalid_transition", decode[map[string]interface{}](t, w)["code"])

	w = s.do("quinn", http.MethodPost, "/documents/"+id+"/actions/archive", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetadataCommentAndPrint(t *testing.T) {
	s := newServer(t)
	id := s.seed()

	w := s.json("alice", http.MethodPatch, "/documents/"+id, gin.H{"title": "Cleaning and disinfection"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Cleaning and disinfection", decode[lifecycle.Result](t, w).Document.Title)

	w = s.json("alice", http.MethodPatch, "/documents/"+id, gin.H{"type": "nonsense"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.json("rita", http.MethodPost, "/documents/"+id+"/comments", gin.H{"body": "section 3 unclear"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.json("rita", http.MethodPost, "/documents/"+id+"/comments", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload("alice", "/documents/"+id+"/check-in", "file", "A01VA004_Cleaning.pdf", "%PDF v2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// drafts have no controlled copies
	w = s.do("vera", http.MethodPost, "/documents/"+id+"/print", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAssignRolesNeedsElevation(t *testing.T) {
	s := newServer(t)
	id := s.seed()
	w := s.json("alice", http.MethodPut, "/documents/"+id+"/assignees", gin.H{"assignees": gin.H{"REVIEWER": []string{"alice"}}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.json("quinn", http.MethodPut, "/documents/"+id+"/assignees", gin.H{"assignees": gin.H{"JANITOR": []string{"x"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do("vera", http.MethodGet, "/documents/"+id+"/assignees", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	as := decode[document.Assignees](t, w)
	assert.Equal(t, []string{"rita"}, as[document.RoleReviewer])
}

func TestExportRegister(t *testing.T) {
	s := newServer(t)
	s.seed()
	w := s.do("vera", http.MethodGet, "/documents/export.xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
	assert.NotZero(t, w.Body.Len())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{document.ErrNotFound, http.StatusNotFound},
		{document.Deny(document.ErrSeparationOfDuties, "publish", "x"), http.StatusForbidden},
		{fmt.Errorf("wrap: %w", document.ErrConflict), http.StatusConflict},
		{document.ErrSignatureMissing, http.StatusUnprocessableEntity},
		{document.ErrArtifactGeneration, http.StatusBadGateway},
		{document.ErrLocked, http.StatusLocked},
		{document.ErrStorageConsistency, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFor(c.err), c.err.Error())
	}
}

func TestActionRefusesServerPaths(t *testing.T) {
	s := newServer(t)
	id := s.seed()
	outside := filepath.Join(t.TempDir(), "server-secret.pdf")
	require.NoError(t, os.WriteFile(outside, []byte("JWT_SECRET=topsecret"), 0o600))

	w := s.json("alice", http.MethodPost, "/documents/"+id+"/actions/submit_review", gin.H{"signed_artifact_path": outside})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "invalid_input", decode[map[string]interface{}](t, w)["code"])

	w = s.upload("alice", "/documents/"+id+"/actions/submit_review", "signed", "author.pdf", "%PDF signed",
		map[string]string{"signed_artifact_path": outside})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = s.do("vera", http.MethodGet, "/documents/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[document.Details](t, w)
	assert.Equal(t, document.StatusDraft, d.Document.Status)
	assert.Empty(t, d.Signatures)

	err := filepath.WalkDir(s.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		assert.NotContains(t, string(raw), "topsecret", path)
		return nil
	})
	require.NoError(t, err)
}

func TestResponsesCarryRelativePaths(t *testing.T) {
	s := newServer(t)
	id := s.seed()

	w := s.upload("alice", "/documents/"+id+"/actions/submit_review", "signed", "author.pdf", "%PDF signed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[lifecycle.Result](t, w)
	assert.False(t, filepath.IsAbs(res.Document.CurrentArtifact), res.Document.CurrentArtifact)
	assert.True(t, strings.HasPrefix(res.Document.CurrentArtifact, id+"/"), res.Document.CurrentArtifact)
	require.NotNil(t, res.Audit)
	assert.False(t, filepath.IsAbs(res.Audit.ArtifactReference), res.Audit.ArtifactReference)
	assert.NotContains(t, w.Body.String(), s.root)

	w = s.do("vera", http.MethodGet, "/documents/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), s.root)
	d := decode[document.Details](t, w)
	require.Len(t, d.Signatures, 1)
	assert.False(t, filepath.IsAbs(d.Signatures[0].ArtifactPath))

	w = s.do("vera", http.MethodGet, "/documents/"+id+"/audit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), s.root)
}
