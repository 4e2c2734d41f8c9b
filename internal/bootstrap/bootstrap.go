// Package bootstrap opens the store and builds the policies and external
// capabilities shared by the server and qmctl.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/qmdoc/doccontrol/internal/capability"
	"github.com/qmdoc/doccontrol/internal/config"
	"github.com/qmdoc/doccontrol/internal/lifecycle"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

// Core is the process-independent part of the wiring.
type Core struct {
	Store       *repository.Store
	Workflow    *workflow.Policy
	Permissions *policy.Policy
	Options     []lifecycle.Option
}

// Policies loads the workflow and permission rules from cfg.Policy.File, or
// the built-in defaults when no file is set.
func Policies(cfg *config.Config) (*workflow.Policy, *policy.Policy, error) {
	wf, perms := workflow.Default(), policy.New()
	if path := cfg.Policy.File; path != "" {
		var err error
		if wf, err = workflow.LoadFile(path); err != nil {
			return nil, nil, err
		}
		if perms, err = policy.LoadFile(path); err != nil {
			return nil, nil, err
		}
		logger.Infof("policy loaded from %s (%d transition rules)", path, len(wf.Rules()))
	}
	perms.Types().SetReviewMonths(cfg.Documents.ReviewMonths)
	wf.UseTypes(perms.Types())
	return wf, perms, nil
}

// Capabilities maps the renderer section onto lifecycle options. Unset
// commands keep the service defaults.
func Capabilities(cfg config.RendererConfig) []lifecycle.Option {
	var opts []lifecycle.Option
	if cfg.Command != "" {
		opts = append(opts, lifecycle.WithRenderer(capability.CommandRenderer{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}))
	} else {
		logger.Warnf("no RENDERER_COMMAND configured; only PDF artifacts can enter the workflow")
	}
	if cfg.WatermarkCmd != "" {
		opts = append(opts, lifecycle.WithWatermarker(capability.CommandWatermarker{Command: cfg.WatermarkCmd, Args: cfg.WatermarkArgs, Timeout: cfg.Timeout}))
	}
	if cfg.SignerCmd != "" {
		opts = append(opts, lifecycle.WithSigner(capability.CommandSigner{Command: cfg.SignerCmd, Args: cfg.SignerArgs, Timeout: cfg.Timeout}))
	}
	return opts
}

// LockTTL returns the configured transition lease, raised so that a
// transition which renders and then signs cannot outlive its lock.
func LockTTL(docs config.DocumentsConfig, r config.RendererConfig) time.Duration {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = capability.DefaultTimeout
	}
	if floor := 2*timeout + time.Minute; docs.LockTTL < floor {
		return floor
	}
	return docs.LockTTL
}

// Open opens the store (running migrations) and loads the policies.
func Open(cfg *config.Config) (*Core, error) {
	wf, perms, err := Policies(cfg)
	if err != nil {
		return nil, err
	}
	store, err := repository.Open(cfg.Storage.DatabasePath, cfg.Storage.Root, repository.WithIDPrefix(cfg.Documents.IDPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	opts := Capabilities(cfg.Renderer)
	ttl := LockTTL(cfg.Documents, cfg.Renderer)
	if ttl != cfg.Documents.LockTTL {
		logger.Infof("transition lock TTL raised to %s to cover render and sign timeouts", ttl)
	}
	opts = append(opts, lifecycle.WithLockTTL(ttl))
	return &Core{Store: store, Workflow: wf, Permissions: perms, Options: opts}, nil
}

// Service builds the lifecycle service with the core options followed by
// extra.
func (c *Core) Service(extra ...lifecycle.Option) *lifecycle.Service {
	opts := append(append([]lifecycle.Option(nil), c.Options...), extra...)
	return lifecycle.New(c.Store, c.Workflow, c.Permissions, opts...)
}

func (c *Core) Close() error { return c.Store.Close() }
