package handler

import (
	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/lifecycle"
)

// Responses carry artifact paths relative to the storage root; absolute
// server paths never leave the process.

func (h *Handler) relPath(p string) string {
	if p == "" {
		return ""
	}
	return h.svc.Layout().Relative(p)
}

func (h *Handler) publicDocument(d *document.Document) *document.Document {
	if d == nil {
		return nil
	}
	out := d.Clone()
	out.CurrentArtifact = h.relPath(d.CurrentArtifact)
	out.EditableArtifact = h.relPath(d.EditableArtifact)
	out.SigningArtifact = h.relPath(d.SigningArtifact)
	return out
}

func (h *Handler) publicEntry(e document.AuditEntry) document.AuditEntry {
	e.ArtifactReference = h.relPath(e.ArtifactReference)
	return e
}

func (h *Handler) publicResult(r *lifecycle.Result) *lifecycle.Result {
	out := *r
	out.Document = h.publicDocument(r.Document)
	if r.Audit != nil {
		e := h.publicEntry(*r.Audit)
		out.Audit = &e
	}
	return &out
}

func (h *Handler) publicDetails(d *document.Details) *document.Details {
	out := *d
	out.Document = h.publicDocument(d.Document)
	out.Signatures = make([]document.SignatureAttachment, len(d.Signatures))
	for i, sig := range d.Signatures {
		sig.ArtifactPath = h.relPath(sig.ArtifactPath)
		out.Signatures[i] = sig
	}
	return &out
}

func (h *Handler) publicTrail(entries []document.AuditEntry) []document.AuditEntry {
	out := make([]document.AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = h.publicEntry(e)
	}
	return out
}
