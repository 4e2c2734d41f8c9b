package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/logger"
	"github.com/qmdoc/doccontrol/pkg/metrics"
)

// step carries one gated action through its effects.
type step struct {
	action    workflow.Action
	doc       *document.Document
	actor     document.Actor
	reason    string
	target    document.Status
	rule      workflow.TransitionRule
	assignees document.Assignees
	sigs      []document.SignatureAttachment

	updated  *document.Document
	artifact string
	details  map[string]string
	warnings []string
	// followUps run after the audit entry is written; they may only add
	// warnings.
	followUps []func(ctx context.Context, st *step)
}

func (st *step) detail(k, v string) {
	if st.details == nil {
		st.details = map[string]string{}
	}
	st.details[k] = v
}

func (st *step) warn(format string, v ...interface{}) {
	st.warnings = append(st.warnings, fmt.Sprintf(format, v...))
}

type applyFunc func(ctx context.Context, st *step) error

// attempt runs one mutating action on an existing document: lock, load,
// gate, apply, audit. Denials and failures after the load are audited; an
// unknown document is not.
func (s *Service) attempt(ctx context.Context, a workflow.Action, id string, actor document.Actor, reason string, target document.Status, apply applyFunc) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "lifecycle."+string(a), trace.WithAttributes(
		attribute.String("qmdoc.document_id", id),
		attribute.String("qmdoc.action", string(a)),
		attribute.String("qmdoc.actor", actor.ID),
	))
	defer span.End()
	log := logger.With("doc", id, "action", a, "actor", actor.ID)

	release, err := s.locker.Acquire(ctx, id, s.lockTTL)
	if err != nil {
		log.Warnf("lock: %v", err)
		s.finish(span, a, document.ResultFailure, start, err)
		return nil, err
	}
	defer release()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		s.finish(span, a, document.ResultFailure, start, err)
		return nil, err
	}

	st := &step{action: a, doc: d, actor: actor, reason: strings.TrimSpace(reason), target: target}
	if err := s.gate(ctx, st); err != nil {
		return nil, s.reject(ctx, log, span, st, start, err)
	}
	if err := apply(ctx, st); err != nil {
		return nil, s.reject(ctx, log, span, st, start, err)
	}
	if st.updated == nil {
		st.updated = d
	}

	entry, err := s.record(ctx, st, document.ResultSuccess, nil)
	if err != nil {
		log.Errorf("audit entry not written: %v", err)
		st.warn("audit entry could not be written")
	}
	for _, f := range st.followUps {
		f(ctx, st)
	}
	s.finish(span, a, document.ResultSuccess, start, nil)
	log.With("result", document.ResultSuccess).Infof("%s -> %s", d.Status, st.updated.Status)

	return &Result{
		Document: st.updated,
		From:     d.Status,
		To:       st.updated.Status,
		Audit:    entry,
		Warnings: st.warnings,
	}, nil
}

// gate resolves the workflow rule and evaluates the permission policy. It
// never mutates anything.
func (s *Service) gate(ctx context.Context, st *step) error {
	d := st.doc
	rule, err := s.workflow.Resolve(st.action, d.Status, d.Type, st.target)
	if err != nil {
		return err
	}
	st.rule = rule
	if st.assignees, err = s.store.GetAssignees(ctx, d.ID); err != nil {
		return err
	}
	if st.sigs, err = s.store.Signatures(ctx, d.ID); err != nil {
		return err
	}
	if err := s.perms.Evaluate(st.action, policy.ContextFor(d, st.actor, st.assignees, st.sigs)); err != nil {
		return err
	}
	if rule.Requires.Elevated && !st.actor.IsElevated() {
		return document.Deny(document.ErrForbidden, string(st.action),
			fmt.Sprintf("%s from %s requires the QMB or ADMIN role", st.action, d.Status))
	}
	if s.workflow.RequiresReason(rule) && st.reason == "" {
		return document.Deny(document.ErrInvalidInput, string(st.action), fmt.Sprintf("%s requires a reason", st.action))
	}
	return nil
}

func (s *Service) reject(ctx context.Context, log logger.Entry, span trace.Span, st *step, start time.Time, cause error) error {
	result := document.ResultFailure
	if d, ok := document.AsDenial(cause); ok {
		result = document.ResultDenied
		log.With("result", result, "code", d.Code()).Infof("denied: %s", d.Reason)
	} else {
		log.With("result", result).Warnf("%v", cause)
	}
	if _, err := s.record(ctx, st, result, cause); err != nil {
		log.Errorf("audit entry not written: %v", err)
	}
	s.finish(span, st.action, result, start, cause)
	return cause
}

// record appends the audit entry for st. It survives cancellation of the
// request context.
func (s *Service) record(ctx context.Context, st *step, result string, cause error) (*document.AuditEntry, error) {
	to := st.target
	switch {
	case st.updated != nil:
		to = st.updated.Status
	case st.rule.To != "":
		to = st.rule.To
	}
	if cause != nil {
		st.detail("code", document.ErrorCode(cause))
		if d, ok := document.AsDenial(cause); ok {
			st.detail("denial", d.Reason)
		} else {
			st.detail("error", cause.Error())
		}
	}
	return s.store.AppendAudit(context.WithoutCancel(ctx), document.AuditEntry{
		DocumentID:        st.doc.ID,
		Action:            string(st.action),
		FromStatus:        st.doc.Status,
		ToStatus:          to,
		ActorID:           st.actor.ID,
		Reason:            st.reason,
		Result:            result,
		ArtifactReference: st.artifact,
		Details:           st.details,
	})
}

func (s *Service) finish(span trace.Span, a workflow.Action, result string, start time.Time, err error) {
	metrics.Transitions.WithLabelValues(string(a), result).Inc()
	metrics.TransitionDuration.WithLabelValues(string(a)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("qmdoc.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
