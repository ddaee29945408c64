package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryMemberRepository is an in-process MemberRepository for tests.
type memoryMemberRepository struct {
	mu      sync.Mutex
	nextID  int64
	members map[string]Member
	roles   map[string]Role
	findErr error
}

func newMemoryMemberRepository() *memoryMemberRepository {
	return &memoryMemberRepository{
		members: map[string]Member{},
		roles: map[string]Role{
			RoleUser:    {ID: 1, Name: RoleUser},
			RoleManager: {ID: 2, Name: RoleManager},
			RoleAdmin:   {ID: 3, Name: RoleAdmin},
		},
	}
}

func (r *memoryMemberRepository) FindByUsername(_ context.Context, username string) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	m, ok := r.members[username]
	if !ok {
		return nil, ErrMemberNotFound
	}
	m.Roles = append([]Role(nil), m.Roles...)
	return &m, nil
}

func (r *memoryMemberRepository) Create(_ context.Context, m Member, roleNames []string) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.Username]; ok {
		return nil, ErrDuplicateUsername
	}
	m.Roles = nil
	seen := map[string]bool{}
	for _, name := range roleNames {
		role, ok := r.roles[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRegistration, name)
		}
		if !seen[name] {
			seen[name] = true
			m.Roles = append(m.Roles, role)
		}
	}
	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = time.Now()
	r.members[m.Username] = m
	return &m, nil
}

// put stores m verbatim, bypassing registration checks.
func (r *memoryMemberRepository) put(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.members[m.Username] = m
}

func (r *memoryMemberRepository) HasRole(_ context.Context, roleName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		for _, role := range m.Roles {
			if role.Name == roleName {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memoryMemberRepository) List(_ context.Context, page, perPage int) ([]MemberListItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]MemberListItem, 0, len(r.members))
	for _, m := range r.members {
		it := MemberListItem{ID: m.ID, Username: m.Username, Name: m.Name, Email: m.Email, CreatedAt: m.CreatedAt, Roles: []string{}}
		for _, role := range m.Roles {
			it.Roles = append(it.Roles, role.Name)
		}
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	return all[start:end], len(all), nil
}
