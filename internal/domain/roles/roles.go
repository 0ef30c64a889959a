// Package roles is the catalog of target roles and their skill requirements.
package roles

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
)

// Sentinel kinds for catalog errors.
var (
	ErrUnknownRole = errors.New("unknown role")
	ErrInvalidRole = errors.New("invalid role")
)

// Catalog looks roles up by case-insensitive name.
type Catalog struct {
	mu    sync.RWMutex
	roles map[string]model.Role
}

// NewCatalog builds a catalog from roles. Later duplicates replace earlier ones.
func NewCatalog(roles ...model.Role) (*Catalog, error) {
	c := &Catalog{roles: make(map[string]model.Role, len(roles))}
	for _, r := range roles {
		if err := c.Put(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Default returns the roles shipped with the service.
func Default() []model.Role {
	return []model.Role{
		{Name: "Backend Engineer", Requirements: []model.RoleSkillRequirement{
			{Name: "Go", RequiredLevel: 80},
			{Name: "SQL", RequiredLevel: 70},
			{Name: "Docker", RequiredLevel: 60},
			{Name: "Kubernetes", RequiredLevel: 50},
		}},
		{Name: "Frontend Engineer", Requirements: []model.RoleSkillRequirement{
			{Name: "TypeScript", RequiredLevel: 80},
			{Name: "React", RequiredLevel: 80},
			{Name: "CSS", RequiredLevel: 60},
		}},
		{Name: "Data Engineer", Requirements: []model.RoleSkillRequirement{
			{Name: "SQL", RequiredLevel: 85},
			{Name: "Python", RequiredLevel: 75},
			{Name: "Spark", RequiredLevel: 60},
		}},
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Put validates and stores r.
func (c *Catalog) Put(r model.Role) error {
	if key(r.Name) == "" {
		return fmt.Errorf("%w: role without name", ErrInvalidRole)
	}
	for _, req := range r.Requirements {
		if key(req.Name) == "" {
			return fmt.Errorf("%w: %s has a requirement without skill name", ErrInvalidRole, r.Name)
		}
		if req.RequiredLevel < model.MinProficiency || req.RequiredLevel > model.MaxProficiency {
			return fmt.Errorf("%w: %s requires %s at %d", ErrInvalidRole, r.Name, req.Name, req.RequiredLevel)
		}
	}
	r.Requirements = slices.Clone(r.Requirements)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[key(r.Name)] = r
	return nil
}

// Get returns the role called name.
func (c *Catalog) Get(name string) (model.Role, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.roles[key(name)]
	if !ok {
		return model.Role{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	r.Requirements = slices.Clone(r.Requirements)
	return r, nil
}

// Names lists the role names in alphabetical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.roles))
	for _, r := range c.roles {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}
