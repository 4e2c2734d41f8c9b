package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmdoc/doccontrol/internal/document"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCommandRendererConverts(t *testing.T) {
	src := writeFile(t, "A01VA004_Cleaning.docx", "docx")
	out := t.TempDir()
	r := CommandRenderer{
		Command: "sh",
		Args:    []string{"-c", `cp "$2" "$1/$(basename "${2%.*}").pdf"`, "render"},
		OutDir:  out,
	}
	got, err := r.RenderToPortable(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "A01VA004_Cleaning.pdf"), got)
}

func TestCommandRendererFailures(t *testing.T) {
	src := writeFile(t, "a.docx", "docx")

	_, err := CommandRenderer{}.RenderToPortable(context.Background(), src)
	require.ErrorIs(t, err, document.ErrArtifactGeneration)

	_, err = CommandRenderer{Command: "sh", Args: []string{"-c", "echo boom >&2; exit 3", "render"}}.RenderToPortable(context.Background(), src)
	require.ErrorIs(t, err, document.ErrArtifactGeneration)
	assert.Contains(t, err.Error(), "boom")

	_, err = CommandRenderer{Command: "true", OutDir: t.TempDir()}.RenderToPortable(context.Background(), src)
	require.ErrorIs(t, err, document.ErrArtifactGeneration, "a command that writes nothing is a failure")
}

func TestPortableInputsPassThrough(t *testing.T) {
	src := writeFile(t, "a.PDF", "pdf")
	got, err := PassthroughRenderer{}.RenderToPortable(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	_, err = PassthroughRenderer{}.RenderToPortable(context.Background(), writeFile(t, "a.docx", "x"))
	require.ErrorIs(t, err, document.ErrArtifactGeneration)
}

func TestCommandSignerAndWatermarker(t *testing.T) {
	src := writeFile(t, "a.pdf", "pdf")
	copyScript := []string{"-c", `cp "$1" "$2"`, "tool"}

	signed, err := CommandSigner{Command: "sh", Args: copyScript, OutDir: t.TempDir()}.
		Sign(context.Background(), src, document.Actor{ID: "alice"}, "ok")
	require.NoError(t, err)
	assert.FileExists(t, signed)

	_, err = CommandSigner{}.Sign(context.Background(), src, document.Actor{ID: "alice"}, "")
	require.ErrorIs(t, err, document.ErrSignatureMissing)

	stamped, err := CommandWatermarker{Command: "sh", Args: copyScript, OutDir: t.TempDir()}.
		Watermark(context.Background(), src, "CONTROLLED COPY")
	require.NoError(t, err)
	assert.FileExists(t, stamped)
}
