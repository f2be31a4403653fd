package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as an execution identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewSkillID generates a random UUID for a skill definition.
func NewSkillID() string {
	return uuid.NewString()
}
