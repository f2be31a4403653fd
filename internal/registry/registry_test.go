package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/registry"
)

func mustRegister(t *testing.T, reg *registry.Registry, s *model.Skill) *model.Skill {
	t.Helper()
	stored, err := reg.Register(s)
	if err != nil {
		t.Fatalf("Register(%s): %v", s.Name, err)
	}
	return stored
}

func TestRegisterDefaults(t *testing.T) {
	reg := registry.NewRegistry()
	s := mustRegister(t, reg, &model.Skill{Name: "echo"})

	if s.Version != model.DefaultVersion {
		t.Errorf("Version = %q, want %q", s.Version, model.DefaultVersion)
	}
	if s.ID == "" {
		t.Error("ID was not generated")
	}
	if s.Status != model.SkillActive {
		t.Errorf("Status = %q, want %q", s.Status, model.SkillActive)
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	reg := registry.NewRegistry()

	if _, err := reg.Register(nil); !errors.Is(err, registry.ErrInvalidSkill) {
		t.Errorf("Register(nil) error = %v, want ErrInvalidSkill", err)
	}
	if _, err := reg.Register(&model.Skill{Name: "  "}); !errors.Is(err, registry.ErrInvalidSkill) {
		t.Errorf("Register(blank name) error = %v, want ErrInvalidSkill", err)
	}
}

func TestGetByNameAndVersionReturnsExactDefinition(t *testing.T) {
	reg := registry.NewRegistry()
	v1 := mustRegister(t, reg, &model.Skill{Name: "echo", Version: "1.0", Configuration: "a"})
	v2 := mustRegister(t, reg, &model.Skill{Name: "echo", Version: "2.0", Configuration: "b"})

	got1, err := reg.GetByNameAndVersion("echo", "1.0")
	if err != nil {
		t.Fatalf("GetByNameAndVersion 1.0: %v", err)
	}
	if got1.ID != v1.ID || got1.Configuration != "a" {
		t.Errorf("1.0 resolved to %+v", got1)
	}

	got2, err := reg.GetByNameAndVersion("echo", "2.0")
	if err != nil {
		t.Fatalf("GetByNameAndVersion 2.0: %v", err)
	}
	if got2.ID != v2.ID || got2.Configuration != "b" {
		t.Errorf("2.0 resolved to %+v", got2)
	}
}

func TestReRegisterReplacesPreviousDefinition(t *testing.T) {
	reg := registry.NewRegistry()
	old := mustRegister(t, reg, &model.Skill{Name: "echo", Configuration: "old"})
	replacement := mustRegister(t, reg, &model.Skill{Name: "echo", Configuration: "new"})

	got, err := reg.GetByNameAndVersion("echo", "1.0")
	if err != nil {
		t.Fatalf("GetByNameAndVersion: %v", err)
	}
	if got.Configuration != "new" {
		t.Errorf("Configuration = %q, want %q", got.Configuration, "new")
	}
	if _, err := reg.GetByID(old.ID); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("old id still reachable: err = %v", err)
	}
	if _, err := reg.GetByID(replacement.ID); err != nil {
		t.Errorf("GetByID(replacement): %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegisterDoesNotAliasCaller(t *testing.T) {
	reg := registry.NewRegistry()
	in := &model.Skill{Name: "echo", Description: "original"}
	stored := mustRegister(t, reg, in)

	in.Description = "mutated"
	got, _ := reg.GetByID(stored.ID)
	if got.Description != "original" {
		t.Errorf("Description = %q, caller mutation leaked into registry", got.Description)
	}
}

func TestLookupsDoNotAliasRegistry(t *testing.T) {
	reg := registry.NewRegistry()
	stored := mustRegister(t, reg, &model.Skill{Name: "echo", Description: "original"})
	stored.Description = "mutated via Register result"

	byID, _ := reg.GetByID(stored.ID)
	byID.Status = model.SkillInactive
	byName, _ := reg.GetByName("echo")
	byName.Description = "mutated via GetByName"
	exact, _ := reg.GetByNameAndVersion("echo", model.DefaultVersion)
	exact.Name = "renamed"
	reg.List()[0].Description = "mutated via List"

	got, err := reg.GetByID(stored.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Description != "original" || got.Status != model.SkillActive || got.Name != "echo" {
		t.Errorf("stored skill = %+v, lookup results leaked into registry", got)
	}
}

func TestUnregister(t *testing.T) {
	reg := registry.NewRegistry()
	s := mustRegister(t, reg, &model.Skill{Name: "echo"})

	reg.Unregister(s.ID)
	reg.Unregister(s.ID) // no-op on absent id
	reg.Unregister("never-registered")

	if _, err := reg.GetByID(s.ID); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("GetByID after Unregister error = %v, want ErrNotFound", err)
	}
	if _, err := reg.GetByName("echo"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("GetByName after Unregister error = %v, want ErrNotFound", err)
	}
}

func TestGetByNamePrefersDefaultVersion(t *testing.T) {
	reg := registry.NewRegistry()
	mustRegister(t, reg, &model.Skill{Name: "echo", Version: "0.9"})
	mustRegister(t, reg, &model.Skill{Name: "echo", Version: "1.0"})
	mustRegister(t, reg, &model.Skill{Name: "echo", Version: "3.0"})

	got, err := reg.GetByName("echo")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", got.Version)
	}

	mustRegister(t, reg, &model.Skill{Name: "other", Version: "b"})
	mustRegister(t, reg, &model.Skill{Name: "other", Version: "a"})
	got, _ = reg.GetByName("other")
	if got.Version != "a" {
		t.Errorf("Version = %q, want lowest version %q", got.Version, "a")
	}
}

func TestLookupsNotFound(t *testing.T) {
	reg := registry.NewRegistry()

	if _, err := reg.GetByID("x"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("GetByID error = %v", err)
	}
	if _, err := reg.GetByName("x"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("GetByName error = %v", err)
	}
	if _, err := reg.GetByNameAndVersion("x", "1.0"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("GetByNameAndVersion error = %v", err)
	}
}

func TestListActiveAndSetStatus(t *testing.T) {
	reg := registry.NewRegistry()
	a := mustRegister(t, reg, &model.Skill{Name: "a"})
	mustRegister(t, reg, &model.Skill{Name: "b", Status: model.SkillInactive})

	if active := reg.ListActive(); len(active) != 1 || active[0].Name != "a" {
		t.Fatalf("ListActive() = %v, want [a]", active)
	}

	updated, err := reg.SetStatus(a.ID, "inactive")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != model.SkillInactive {
		t.Errorf("Status = %q, want INACTIVE", updated.Status)
	}
	if active := reg.ListActive(); len(active) != 0 {
		t.Errorf("ListActive() after deactivate = %v, want empty", active)
	}
	if a.Status != model.SkillActive {
		t.Error("SetStatus mutated a previously returned snapshot")
	}

	if _, err := reg.SetStatus(a.ID, "bogus"); !errors.Is(err, registry.ErrInvalidSkill) {
		t.Errorf("SetStatus(bogus) error = %v, want ErrInvalidSkill", err)
	}
	if _, err := reg.SetStatus("missing", model.SkillActive); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	reg := registry.NewRegistry()
	mustRegister(t, reg, &model.Skill{Name: "WebSearch", Description: "query the web"})
	mustRegister(t, reg, &model.Skill{Name: "calculator", Description: "Arithmetic on NUMBERS"})
	mustRegister(t, reg, &model.Skill{Name: "clock"})

	tests := []struct {
		keyword string
		want    []string
	}{
		{"search", []string{"WebSearch"}},
		{"numbers", []string{"calculator"}},
		{"C", []string{"WebSearch", "calculator", "clock"}},
		{"", []string{"WebSearch", "calculator", "clock"}},
		{"nothing", nil},
	}
	for _, tc := range tests {
		got := reg.Search(tc.keyword)
		if len(got) != len(tc.want) {
			t.Errorf("Search(%q) returned %d skills, want %d", tc.keyword, len(got), len(tc.want))
			continue
		}
		for i, s := range got {
			if s.Name != tc.want[i] {
				t.Errorf("Search(%q)[%d] = %q, want %q", tc.keyword, i, s.Name, tc.want[i])
			}
		}
	}
}

func TestConcurrentRegister(t *testing.T) {
	reg := registry.NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Register(&model.Skill{Name: fmt.Sprintf("s%d", i%10)})
		}()
	}
	wg.Wait()

	if reg.Count() != 10 {
		t.Errorf("Count() = %d, want 10", reg.Count())
	}
}
