package directory

import "time"

// Profile is what the directory knows about an actor, mapped from identity
// token claims.
type Profile struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Roles     []string  `bson:"roles,omitempty" json:"roles,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
