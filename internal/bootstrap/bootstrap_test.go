package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmdoc/doccontrol/internal/config"
	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Storage:   config.StorageConfig{Root: filepath.Join(dir, "files"), DatabasePath: filepath.Join(dir, "qm.sqlite")},
		Documents: config.DocumentsConfig{IDPrefix: "QM", ReviewMonths: 24},
	}
}

func TestOpenUsesDefaults(t *testing.T) {
	cfg := testConfig(t)
	core, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = core.Close() }()

	assert.Equal(t, 24, core.Permissions.Types().Get(document.TypeProcedure).ReviewMonths)
	assert.Len(t, core.Options, 1, "lock TTL only")

	src := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o644))
	res, err := core.Service().Create(context.Background(), repository.NewDocument{}, src, document.Actor{ID: "quinn", Roles: []document.SystemRole{document.SystemQMB}})
	require.NoError(t, err)
	assert.Regexp(t, `^QM-\d{4}-0001$`, res.Document.ID)
}

func TestPoliciesFromFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.File = filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(cfg.Policy.File, []byte(`
document_types:
  QMH:
    label: Handbook
    review_months: 36
forbidden_transitions:
  - "ARCHIVED->*"
`), 0o644))

	wf, perms, err := Policies(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Handbook", perms.Types().Get(document.TypeManual).Label)
	assert.Equal(t, 36, perms.Types().Get(document.TypeManual).ReviewMonths)
	assert.Equal(t, 24, perms.Types().Get(document.TypeRecord).ReviewMonths)
	assert.False(t, wf.IsTransitionForbidden(document.StatusDraft, document.StatusApproval))

	cfg.Policy.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = Policies(cfg)
	require.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	assert.Len(t, Capabilities(config.RendererConfig{Command: "soffice", WatermarkCmd: "stamp", SignerCmd: "sign"}), 3)
	assert.Empty(t, Capabilities(config.RendererConfig{}))
}

func TestLockTTLCoversCapabilityTimeouts(t *testing.T) {
	r := config.RendererConfig{Timeout: 2 * time.Minute}
	assert.Equal(t, 5*time.Minute, LockTTL(config.DocumentsConfig{LockTTL: 2 * time.Minute}, r))
	assert.Equal(t, 10*time.Minute, LockTTL(config.DocumentsConfig{LockTTL: 10 * time.Minute}, r))
	assert.Equal(t, 5*time.Minute, LockTTL(config.DocumentsConfig{}, config.RendererConfig{}))
}
