// Package directory resolves actor ids to display names. Profiles are
// upserted from identity claims whenever an actor calls the API.
package directory

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qmdoc/doccontrol/pkg/logger"
)

// Service encapsulates profile lookups.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a profile from a token claims map.
// A claims map without a subject is ignored.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*Profile, error) {
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, nil
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	email, _ := claims["email"].(string)
	p := &Profile{ID: sub, Name: name, Email: email, Roles: claimRoles(claims)}
	return s.repo.Upsert(ctx, p)
}

func claimRoles(claims map[string]interface{}) []string {
	var raw []interface{}
	switch v := claims["roles"].(type) {
	case []interface{}:
		raw = v
	case []string:
		return append([]string(nil), v...)
	}
	if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
		if rs, ok := realm["roles"].([]interface{}); ok {
			raw = append(raw, rs...)
		}
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	return s.repo.Get(ctx, id)
}

// DisplayName returns the profile name, or the id itself when the actor is
// unknown or the lookup fails.
func (s *Service) DisplayName(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		logger.Warnf("directory: lookup %s: %v", id, err)
		return id
	}
	if p == nil || p.Name == "" {
		return id
	}
	return p.Name
}

// DisplayNames resolves many ids concurrently.
func (s *Service) DisplayNames(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		id := id
		g.Go(func() error {
			name := s.DisplayName(gctx, id)
			mu.Lock()
			out[id] = name
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
