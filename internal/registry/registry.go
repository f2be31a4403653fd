package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

var (
	// ErrNotFound is returned when no skill matches a lookup.
	ErrNotFound = errors.New("skill not found")
	// ErrInvalidSkill is returned when a skill cannot be registered.
	ErrInvalidSkill = errors.New("invalid skill")
)

// Registry stores skill definitions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*model.Skill
	versions map[string]map[string]*model.Skill // name → version → skill
	now      func() time.Time
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*model.Skill),
		versions: make(map[string]map[string]*model.Skill),
		now:      time.Now,
	}
}

// Register stores a copy of s under its (name, version) key and returns a
// copy of the stored definition. A missing version defaults to model.DefaultVersion, a missing id
// is generated and a missing status becomes ACTIVE. Registering an existing
// key replaces the previous definition and drops its id.
func (r *Registry) Register(s *model.Skill) (*model.Skill, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil skill", ErrInvalidSkill)
	}
	if strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidSkill)
	}

	stored := s.Clone()
	if stored.Version == "" {
		stored.Version = model.DefaultVersion
	}
	if stored.ID == "" {
		stored.ID = model.NewSkillID()
	}
	if stored.Status == "" {
		stored.Status = model.SkillActive
	}
	stored.Status = strings.ToUpper(stored.Status)

	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[stored.ID]; ok && prev.Key() != stored.Key() {
		// Same id re-registered under a different key: drop the old key.
		r.removeVersionLocked(prev)
	}

	vs, ok := r.versions[stored.Name]
	if !ok {
		vs = make(map[string]*model.Skill)
		r.versions[stored.Name] = vs
	}
	if prev, ok := vs[stored.Version]; ok && prev.ID != stored.ID {
		delete(r.byID, prev.ID)
	}
	vs[stored.Version] = stored
	r.byID[stored.ID] = stored

	return stored.Clone(), nil
}

// Unregister removes the skill with the given id. It is a no-op if absent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.removeVersionLocked(s)
}

func (r *Registry) removeVersionLocked(s *model.Skill) {
	vs, ok := r.versions[s.Name]
	if !ok {
		return
	}
	if cur, ok := vs[s.Version]; ok && cur.ID == s.ID {
		delete(vs, s.Version)
	}
	if len(vs) == 0 {
		delete(r.versions, s.Name)
	}
}

// SetStatus replaces the status of the skill with the given id.
func (r *Registry) SetStatus(id, status string) (*model.Skill, error) {
	status = strings.ToUpper(status)
	if !model.ValidSkillStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSkill, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	updated := s.Clone()
	updated.Status = status
	updated.UpdatedAt = r.now()

	r.byID[id] = updated
	r.versions[updated.Name][updated.Version] = updated
	return updated.Clone(), nil
}

// GetByID returns the skill with the given id.
func (r *Registry) GetByID(id string) (*model.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

// GetByName returns a skill with the given name. The default version is
// preferred; otherwise the lowest version string is returned so the answer is
// stable across calls.
func (r *Registry) GetByName(name string) (*model.Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vs, ok := r.versions[name]
	if !ok || len(vs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if s, ok := vs[model.DefaultVersion]; ok {
		return s.Clone(), nil
	}
	versions := make([]string, 0, len(vs))
	for v := range vs {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return vs[versions[0]].Clone(), nil
}

// GetByNameAndVersion returns the skill registered under (name, version).
func (r *Registry) GetByNameAndVersion(name, version string) (*model.Skill, error) {
	if version == "" {
		version = model.DefaultVersion
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.versions[name][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, model.SkillKey(name, version))
	}
	return s.Clone(), nil
}

// List returns all registered skills sorted by name and version.
func (r *Registry) List() []*model.Skill {
	return r.filter(func(*model.Skill) bool { return true })
}

// ListActive returns all skills whose status is ACTIVE.
func (r *Registry) ListActive() []*model.Skill {
	return r.filter((*model.Skill).Active)
}

// Search returns skills whose name or description contains keyword,
// ignoring case. An empty keyword matches every skill.
func (r *Registry) Search(keyword string) []*model.Skill {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	return r.filter(func(s *model.Skill) bool {
		return strings.Contains(strings.ToLower(s.Name), kw) ||
			strings.Contains(strings.ToLower(s.Description), kw)
	})
}

// Count returns the number of registered skills.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) filter(keep func(*model.Skill) bool) []*model.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Skill, 0, len(r.byID))
	for _, s := range r.byID {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
