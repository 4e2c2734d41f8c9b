// Package lifecycle orchestrates document transitions: it gates every action
// through the workflow and permission policies, drives the external
// rendering and signing capabilities, persists through the repository and
// records the outcome in the audit trail.
package lifecycle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/qmdoc/doccontrol/internal/capability"
	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/lock"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
)

// Store is the persistence the service needs. *repository.Store implements it.
type Store interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	Verify(d *document.Document) error
	CreateFromFile(ctx context.Context, meta repository.NewDocument, src string) (*document.Document, error)
	Search(ctx context.Context, q repository.Query) ([]document.Summary, error)
	SetStatus(ctx context.Context, ch repository.StatusChange) (*document.Document, error)
	UpdateMetadata(ctx context.Context, id string, u repository.MetadataUpdate) (*document.Document, error)
	CheckIn(ctx context.Context, id, src, filename, actorID string, bumpRevision bool) (*document.Document, error)
	AttachSignedArtifact(ctx context.Context, a repository.Attachment) (*document.SignatureAttachment, error)
	DiscardSignature(ctx context.Context, sig *document.SignatureAttachment) error
	Signatures(ctx context.Context, id string) ([]document.SignatureAttachment, error)
	GetAssignees(ctx context.Context, id string) (document.Assignees, error)
	SetAssignees(ctx context.Context, id string, a document.Assignees) error
	AppendAudit(ctx context.Context, e document.AuditEntry) (*document.AuditEntry, error)
	AuditTrail(ctx context.Context, id string) ([]document.AuditEntry, error)
	AddComment(ctx context.Context, id, actorID, body string) (*document.Comment, error)
	Comments(ctx context.Context, id string) ([]document.Comment, error)
	RecordPrint(ctx context.Context, id, actorID string) (int, error)
	Layout() repository.Layout
}

// Renderer turns a working artifact into a fixed-layout one.
type Renderer interface {
	RenderToPortable(ctx context.Context, src string) (string, error)
}

// Signer produces a signed copy of a portable artifact.
type Signer interface {
	Sign(ctx context.Context, src string, actor document.Actor, reason string) (string, error)
}

// Watermarker stamps controlled copies.
type Watermarker interface {
	Watermark(ctx context.Context, src, text string) (string, error)
}

// Replicator copies released artifacts to secondary storage.
type Replicator interface {
	Replicate(ctx context.Context, docID string, major int, path string) (string, error)
}

// Directory resolves actor ids to display names.
type Directory interface {
	DisplayNames(ctx context.Context, ids []string) map[string]string
}

// Service is safe for concurrent use; transitions on the same document are
// serialized through the Locker.
type Service struct {
	store       Store
	workflow    *workflow.Policy
	perms       *policy.Policy
	renderer    Renderer
	signer      Signer
	watermarker Watermarker
	replicator  Replicator
	directory   Directory
	locker      lock.Locker
	lockTTL     time.Duration
	now         func() time.Time
	tracer      trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

func WithRenderer(r Renderer) Option { return func(s *Service) { s.renderer = r } }

// WithSigner lets the service sign headlessly when a request carries no
// signed artifact.
func WithSigner(sg Signer) Option { return func(s *Service) { s.signer = sg } }

func WithWatermarker(w Watermarker) Option { return func(s *Service) { s.watermarker = w } }

func WithReplicator(r Replicator) Option { return func(s *Service) { s.replicator = r } }

func WithDirectory(d Directory) Option { return func(s *Service) { s.directory = d } }

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

// WithLockTTL bounds how long a crashed transition can block its document.
func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

func New(store Store, wf *workflow.Policy, perms *policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:    store,
		workflow: wf,
		perms:    perms,
		renderer: capability.PassthroughRenderer{},
		locker:   lock.NewMemoryLocker(),
		lockTTL:  2*capability.DefaultTimeout + time.Minute,
		now:      time.Now,
		tracer:   otel.Tracer("github.com/qmdoc/doccontrol/internal/lifecycle"),
	}
	for _, o := range opts {
		o(s)
	}
	if wf.Types() == nil {
		wf.UseTypes(perms.Types())
	}
	return s
}

// Workflow exposes the state machine the service enforces.
func (s *Service) Workflow() *workflow.Policy { return s.workflow }

// Permissions exposes the permission policy the service enforces.
func (s *Service) Permissions() *policy.Policy { return s.perms }

// Layout exposes the storage tree, e.g. to report artifact paths relative to
// its root.
func (s *Service) Layout() repository.Layout { return s.store.Layout() }

// Request is one action invocation.
type Request struct {
	Action             workflow.Action
	DocumentID         string
	Actor              document.Actor
	Reason             string
	SignedArtifactPath string          // signer output for forward actions
	Target             document.Status // destination of archive, "" for the default
}

// Result describes a committed action.
type Result struct {
	Document *document.Document   `json:"document"`
	From     document.Status      `json:"from"`
	To       document.Status      `json:"to"`
	Audit    *document.AuditEntry `json:"audit,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}
