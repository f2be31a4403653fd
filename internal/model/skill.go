package model

import (
	"strings"
	"time"
)

// DefaultVersion is assigned to skills registered without a version.
const DefaultVersion = "1.0"

// Skill status constants.
const (
	SkillActive   = "ACTIVE"
	SkillInactive = "INACTIVE"
)

// Skill is a named, versioned unit of executable capability.
type Skill struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   string    `json:"description,omitempty"`
	Type          string    `json:"type,omitempty"`
	Status        string    `json:"status"`
	InputSchema   string    `json:"inputSchema,omitempty"`
	OutputSchema  string    `json:"outputSchema,omitempty"`
	Configuration string    `json:"configuration,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Key returns the identity of the skill, "name:version".
func (s *Skill) Key() string {
	return SkillKey(s.Name, s.Version)
}

// Active reports whether the skill may be executed.
func (s *Skill) Active() bool {
	return s.Status == SkillActive
}

// Clone returns a shallow copy of the skill.
func (s *Skill) Clone() *Skill {
	c := *s
	return &c
}

// SkillKey builds the registry key for a name and version. An empty version
// resolves to DefaultVersion.
func SkillKey(name, version string) string {
	if version == "" {
		version = DefaultVersion
	}
	return name + ":" + version
}

// ValidSkillStatus reports whether s is a known skill status.
func ValidSkillStatus(s string) bool {
	switch strings.ToUpper(s) {
	case SkillActive, SkillInactive:
		return true
	}
	return false
}
