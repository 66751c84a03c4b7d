// Copyright 2026 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides an in-memory tenancy.Store for tests and local
// development. It enforces the same uniqueness constraints as the
// Postgres schema (unique user email, at most one organization) at
// commit time, so provisioning races behave the same as against the real
// store.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/identity"
	"github.com/loomworks/loom/internal/tenancy"
)

// Store implements tenancy.Store in memory.
type Store struct {
	mu sync.Mutex

	users                   []identity.User
	organizations           []tenancy.Organization
	organizationMemberships []tenancy.OrganizationMembership
	workspaces              []tenancy.Workspace
	workspaceMemberships    []tenancy.WorkspaceMembership
	roles                   []tenancy.Role
}

// NewStore creates an empty store. Roles must be seeded explicitly,
// mirroring the install-time seeding of the SQL schema.
func NewStore() *Store {
	return &Store{}
}

// SeedRole adds a pre-seeded role, replacing any role of the same name.
func (s *Store) SeedRole(role tenancy.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.roles {
		if r.Name == role.Name {
			s.roles[i] = role
			return
		}
	}
	s.roles = append(s.roles, role)
}

// Begin opens a unit of work staging writes until Commit.
func (s *Store) Begin(ctx context.Context) (tenancy.UnitOfWork, error) {
	return &unitOfWork{store: s}, nil
}

// Counts returns committed row counts per table, in creation-order:
// users, organizations, organization memberships, workspaces, workspace
// memberships.
func (s *Store) Counts() (int, int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.organizations), len(s.organizationMemberships),
		len(s.workspaces), len(s.workspaceMemberships)
}

// FindUser returns the committed user with the given email, or nil.
func (s *Store) FindUser(email string) *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Email == email {
			u := s.users[i]
			return &u
		}
	}
	return nil
}

// Organizations returns a copy of the committed organizations.
func (s *Store) Organizations() []tenancy.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenancy.Organization(nil), s.organizations...)
}

// OrganizationMemberships returns a copy of the committed organization
// memberships.
func (s *Store) OrganizationMemberships() []tenancy.OrganizationMembership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenancy.OrganizationMembership(nil), s.organizationMemberships...)
}

// Workspaces returns a copy of the committed workspaces.
func (s *Store) Workspaces() []tenancy.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenancy.Workspace(nil), s.workspaces...)
}

// WorkspaceMemberships returns a copy of the committed workspace
// memberships.
func (s *Store) WorkspaceMemberships() []tenancy.WorkspaceMembership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenancy.WorkspaceMembership(nil), s.workspaceMemberships...)
}

// unitOfWork stages writes and applies them atomically on Commit.
type unitOfWork struct {
	store *Store
	done  bool

	users                   []identity.User
	organizations           []tenancy.Organization
	organizationMemberships []tenancy.OrganizationMembership
	workspaces              []tenancy.Workspace
	workspaceMemberships    []tenancy.WorkspaceMembership
}

func (u *unitOfWork) Users() tenancy.UserRepository {
	return &userRepository{uow: u}
}

func (u *unitOfWork) Organizations() tenancy.OrganizationRepository {
	return &organizationRepository{uow: u}
}

func (u *unitOfWork) OrganizationMemberships() tenancy.OrganizationMembershipRepository {
	return &organizationMembershipRepository{uow: u}
}

func (u *unitOfWork) Workspaces() tenancy.WorkspaceRepository {
	return &workspaceRepository{uow: u}
}

func (u *unitOfWork) WorkspaceMemberships() tenancy.WorkspaceMembershipRepository {
	return &workspaceMembershipRepository{uow: u}
}

func (u *unitOfWork) Roles() tenancy.RoleRepository {
	return &roleRepository{uow: u}
}

// Commit validates the staged writes against the committed state under
// the store lock and applies them all, or none on a constraint
// violation. This is where the losing side of a provisioning race fails.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errors.New("unit of work already closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range u.users {
		for j := range s.users {
			if s.users[j].Email == u.users[i].Email {
				return tenancy.ErrProvisioningConflict
			}
		}
	}
	if len(u.organizations) > 0 && len(s.organizations)+len(u.organizations) > 1 {
		return tenancy.ErrTenancyAlreadyInitialized
	}

	s.users = append(s.users, u.users...)
	s.organizations = append(s.organizations, u.organizations...)
	s.organizationMemberships = append(s.organizationMemberships, u.organizationMemberships...)
	s.workspaces = append(s.workspaces, u.workspaces...)
	s.workspaceMemberships = append(s.workspaceMemberships, u.workspaceMemberships...)
	u.done = true

	return nil
}

// Rollback discards staged writes. After Commit it is a no-op.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	u.users = nil
	u.organizations = nil
	u.organizationMemberships = nil
	u.workspaces = nil
	u.workspaceMemberships = nil
	u.done = true
	return nil
}

type userRepository struct {
	uow *unitOfWork
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	for i := range r.uow.users {
		if r.uow.users[i].Email == email {
			u := r.uow.users[i]
			return &u, nil
		}
	}

	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Email == email {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *userRepository) Create(ctx context.Context, user *identity.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.uow.users = append(r.uow.users, *user)
	return nil
}

type organizationRepository struct {
	uow *unitOfWork
}

func (r *organizationRepository) Count(ctx context.Context) (int64, error) {
	s := r.uow.store
	s.mu.Lock()
	committed := len(s.organizations)
	s.mu.Unlock()
	return int64(committed + len(r.uow.organizations)), nil
}

func (r *organizationRepository) Create(ctx context.Context, org *tenancy.Organization) error {
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now
	r.uow.organizations = append(r.uow.organizations, *org)
	return nil
}

type organizationMembershipRepository struct {
	uow *unitOfWork
}

func (r *organizationMembershipRepository) Create(ctx context.Context, m *tenancy.OrganizationMembership) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.uow.organizationMemberships = append(r.uow.organizationMemberships, *m)
	return nil
}

type workspaceRepository struct {
	uow *unitOfWork
}

func (r *workspaceRepository) Create(ctx context.Context, ws *tenancy.Workspace) error {
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	r.uow.workspaces = append(r.uow.workspaces, *ws)
	return nil
}

type workspaceMembershipRepository struct {
	uow *unitOfWork
}

func (r *workspaceMembershipRepository) Create(ctx context.Context, m *tenancy.WorkspaceMembership) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.uow.workspaceMemberships = append(r.uow.workspaceMemberships, *m)
	return nil
}

type roleRepository struct {
	uow *unitOfWork
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*tenancy.Role, error) {
	s := r.uow.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.roles {
		if s.roles[i].Name == name {
			role := s.roles[i]
			return &role, nil
		}
	}
	return nil, tenancy.ErrRoleNotFound
}
