package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines persistence operations for actor profiles. Get returns
// (nil, nil) for unknown ids.
type Repository interface {
	Upsert(ctx context.Context, p *Profile) (*Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": p.ID}
	update := bson.M{
		"$set": bson.M{
			"name":      p.Name,
			"email":     p.Email,
			"roles":     p.Roles,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated Profile
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return p, nil
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// MemoryRepository keeps profiles for the lifetime of the process.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: map[string]Profile{}}
}

func (r *MemoryRepository) Upsert(_ context.Context, p *Profile) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	stored := *p
	if prev, ok := r.profiles[p.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.profiles[p.ID] = stored
	out := stored
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
