// Package capability adapts external converters to the renderer, signer and
// watermarker contracts used by the lifecycle service. Each runs a configured
// command and validates that it produced the expected file.
package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

// DefaultTimeout bounds a single external invocation.
const DefaultTimeout = 2 * time.Minute

func run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	logger.Debugf("capability: running %s %s", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", name, timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func requireOutput(path string, kind error) error {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() || st.Size() == 0 {
		return fmt.Errorf("%w: expected output %s was not produced", kind, path)
	}
	return nil
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CommandRenderer converts editable artifacts to PDF. It is invoked as
// "<Command> <Args...> <outdir> <input>" and must write <outdir>/<stem>.pdf,
// which matches "soffice --headless --convert-to pdf --outdir".
type CommandRenderer struct {
	Command string
	Args    []string
	Timeout time.Duration
	// OutDir receives rendered files; a temp dir is used when empty.
	OutDir string
}

func (r CommandRenderer) RenderToPortable(ctx context.Context, src string) (string, error) {
	if document.IsPortable(src) {
		return src, nil
	}
	if r.Command == "" {
		return "", fmt.Errorf("%w: no renderer configured for %s", document.ErrArtifactGeneration, filepath.Base(src))
	}
	outDir := r.OutDir
	if outDir == "" {
		dir, err := os.MkdirTemp("", "qmdoc-render-*")
		if err != nil {
			return "", fmt.Errorf("%w: %v", document.ErrArtifactGeneration, err)
		}
		outDir = dir
	}
	args := append(append([]string(nil), r.Args...), outDir, src)
	if err := run(ctx, r.Timeout, r.Command, args...); err != nil {
		return "", fmt.Errorf("%w: %v", document.ErrArtifactGeneration, err)
	}
	out := filepath.Join(outDir, stem(src)+".pdf")
	if err := requireOutput(out, document.ErrArtifactGeneration); err != nil {
		return "", err
	}
	return out, nil
}

// PassthroughRenderer accepts portable artifacts as they are and refuses
// anything that would need conversion.
type PassthroughRenderer struct{}

func (PassthroughRenderer) RenderToPortable(_ context.Context, src string) (string, error) {
	if document.IsPortable(src) {
		return src, nil
	}
	return "", fmt.Errorf("%w: %s is not a PDF and no renderer is configured", document.ErrArtifactGeneration, filepath.Base(src))
}

// CommandWatermarker stamps controlled copies. It is invoked as
// "<Command> <Args...> <input> <output> <text>".
type CommandWatermarker struct {
	Command string
	Args    []string
	Timeout time.Duration
	OutDir  string
}

func (w CommandWatermarker) Watermark(ctx context.Context, src, text string) (string, error) {
	if w.Command == "" {
		return "", fmt.Errorf("%w: no watermark command configured", document.ErrArtifactGeneration)
	}
	outDir := w.OutDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	out := filepath.Join(outDir, fmt.Sprintf("%s_copy_%d.pdf", stem(src), time.Now().UnixNano()))
	args := append(append([]string(nil), w.Args...), src, out, text)
	if err := run(ctx, w.Timeout, w.Command, args...); err != nil {
		return "", fmt.Errorf("%w: %v", document.ErrArtifactGeneration, err)
	}
	if err := requireOutput(out, document.ErrArtifactGeneration); err != nil {
		return "", err
	}
	return out, nil
}

// CommandSigner is a headless signer. It is invoked as
// "<Command> <Args...> <input> <output> <actor> <reason>".
type CommandSigner struct {
	Command string
	Args    []string
	Timeout time.Duration
	OutDir  string
}

func (s CommandSigner) Sign(ctx context.Context, src string, actor document.Actor, reason string) (string, error) {
	if s.Command == "" {
		return "", fmt.Errorf("%w: no signer configured", document.ErrSignatureMissing)
	}
	outDir := s.OutDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	out := filepath.Join(outDir, fmt.Sprintf("%s_signed_%s_%d.pdf", stem(src), actor.ID, time.Now().UnixNano()))
	args := append(append([]string(nil), s.Args...), src, out, actor.ID, reason)
	if err := run(ctx, s.Timeout, s.Command, args...); err != nil {
		return "", fmt.Errorf("%w: %v", document.ErrSignatureMissing, err)
	}
	if err := requireOutput(out, document.ErrSignatureMissing); err != nil {
		return "", err
	}
	return out, nil
}
