package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	lastUpsert *Profile
	profiles   map[string]*Profile
	getErr     error
}

func (f *fakeRepo) Upsert(_ context.Context, p *Profile) (*Profile, error) {
	f.lastUpsert = p
	ret := *p
	return &ret, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*Profile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.profiles[id], nil
}

func TestUpsertFromClaims(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
		"sub":                "u-123",
		"preferred_username": "rita",
		"email":              "rita@example.org",
		"realm_access":       map[string]interface{}{"roles": []interface{}{"QMB", "offline_access"}},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u-123", p.ID)
	assert.Equal(t, "rita", p.Name)
	assert.Equal(t, []string{"QMB", "offline_access"}, repo.lastUpsert.Roles)

	p, err = svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@example.org"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDisplayNamesFallBackToID(t *testing.T) {
	repo := &fakeRepo{profiles: map[string]*Profile{
		"u1": {ID: "u1", Name: "Alice Author"},
		"u2": {ID: "u2"},
	}}
	svc := NewService(repo)

	names := svc.DisplayNames(context.Background(), []string{"u1", "u2", "u3", "u1", ""})
	assert.Equal(t, map[string]string{"u1": "Alice Author", "u2": "u2", "u3": "u3"}, names)

	repo.getErr = errors.New("mongo down")
	assert.Equal(t, "u1", svc.DisplayName(context.Background(), "u1"))
}

func TestMemoryRepositoryKeepsCreatedAt(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Upsert(ctx, &Profile{ID: "u1", Name: "A"})
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, &Profile{ID: "u1", Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
