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

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/loomworks/loom/internal/audit"
	"github.com/loomworks/loom/internal/identity"
	"github.com/loomworks/loom/internal/platform"
	"github.com/loomworks/loom/internal/store/memory"
	"github.com/loomworks/loom/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts how many units of work were opened.
type countingStore struct {
	tenancy.Store
	begins atomic.Int32
}

func (s *countingStore) Begin(ctx context.Context) (tenancy.UnitOfWork, error) {
	s.begins.Add(1)
	return s.Store.Begin(ctx)
}

func newSeededStore() *memory.Store {
	s := memory.NewStore()
	s.SeedRole(tenancy.Role{
		ID:   "00000000-0000-0000-0000-000000000001",
		Name: tenancy.RoleOwner,
	})
	return s
}

func newTestHandler(store tenancy.Store, mode platform.Mode) *Handler {
	provisioner := tenancy.NewProvisioner(platform.NewStaticProvider(mode), audit.NewSlogLogger(), nil)
	return NewHandler(store, provisioner, audit.NewSlogLogger(), HeaderConfig{
		EmailHeader: identity.DefaultEmailHeader,
		NameHeader:  identity.DefaultNameHeader,
	})
}

// gate wraps the middleware around a recorder handler and reports the
// user seen by the downstream handler.
func gate(h *Handler) (http.Handler, *atomic.Pointer[identity.User]) {
	var seen atomic.Pointer[identity.User]
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := UserFromContext(r.Context()); user != nil {
			seen.Store(user)
		}
		w.WriteHeader(http.StatusOK)
	})
	return h.IdentityMiddleware(next), &seen
}

// TestPurpose: Validates that a request without the identity header is
// rejected before any unit of work is opened.
// Scope: Unit Test
// Expected: 401, zero Begin calls, zero rows, downstream not reached.
// Test Case ID: GTE-01
func TestIdentityMiddleware_MissingHeader(t *testing.T) {
	store := &countingStore{Store: newSeededStore()}
	handler, seen := gate(newTestHandler(store, platform.ModeSingleTenant))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), identity.ErrMissingIdentity.Error())
	assert.Zero(t, store.begins.Load())
	assert.Nil(t, seen.Load())
}

// TestPurpose: Validates that a request cancelled before commit persists
// nothing: the commit observes the cancellation and fails, and the
// deferred rollback discards the staged bootstrap rows.
// Scope: Unit Test
// Expected: 500, downstream not reached, zero rows in every table.
// Test Case ID: GTE-10
func TestIdentityMiddleware_CancelledRequestDiscardsBootstrap(t *testing.T) {
	store := newSeededStore()
	handler, seen := gate(newTestHandler(store, platform.ModeSingleTenant))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, seen.Load())

	users, orgs, orgMemberships, workspaces, wsMemberships := store.Counts()
	assert.Zero(t, users)
	assert.Zero(t, orgs)
	assert.Zero(t, orgMemberships)
	assert.Zero(t, workspaces)
	assert.Zero(t, wsMemberships)
}

// TestPurpose: Validates the first-request bootstrap through the full
// middleware path and the context attachment seen downstream.
// Scope: Unit Test
// Expected: 200, downstream sees the provisioned user, one row per
// table.
// Test Case ID: GTE-02
func TestIdentityMiddleware_ProvisionsOnFirstSight(t *testing.T) {
	store := newSeededStore()
	handler, seen := gate(newTestHandler(store, platform.ModeSingleTenant))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	user := seen.Load()
	require.NotNil(t, user)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Name)

	users, orgs, orgMemberships, workspaces, wsMemberships := store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, orgs)
	assert.Equal(t, 1, orgMemberships)
	assert.Equal(t, 1, workspaces)
	assert.Equal(t, 1, wsMemberships)
}

// TestPurpose: Validates the idempotent lookup path for a known
// identity.
// Scope: Unit Test
// Expected: Second request forwards the same user and creates no rows.
// Test Case ID: GTE-03
func TestIdentityMiddleware_ExistingUserForwarded(t *testing.T) {
	store := newSeededStore()
	handler, seen := gate(newTestHandler(store, platform.ModeSingleTenant))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	users, orgs, _, _, _ := store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, orgs)

	stored := store.FindUser("alice@example.com")
	require.NotNil(t, stored)
	assert.Equal(t, stored.ID, seen.Load().ID)
}

// TestPurpose: Validates the rejection of auto-provisioning in
// multi-tenant mode.
// Scope: Unit Test
// Expected: 401 and an untouched store.
// Test Case ID: GTE-04
func TestIdentityMiddleware_MultiTenantRejected(t *testing.T) {
	store := newSeededStore()
	handler, seen := gate(newTestHandler(store, platform.ModeMultiTenant))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen.Load())
	users, _, _, _, _ := store.Counts()
	assert.Zero(t, users)
}

// TestPurpose: Validates the rejection of a second bootstrap once an
// organization exists.
// Scope: Unit Test
// Expected: 400 for a fresh identity, no new rows.
// Test Case ID: GTE-05
func TestIdentityMiddleware_SecondBootstrapRejected(t *testing.T) {
	store := newSeededStore()
	handler, _ := gate(newTestHandler(store, platform.ModeSingleTenant))

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	handler.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.Header.Set(identity.DefaultEmailHeader, "bob@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, second)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	users, orgs, _, _, _ := store.Counts()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, orgs)
}

// TestPurpose: Validates that a missing owner role surfaces as a server
// error.
// Scope: Unit Test
// Expected: 500 and no rows.
// Test Case ID: GTE-06
func TestIdentityMiddleware_OwnerRoleMissing(t *testing.T) {
	store := memory.NewStore() // role not seeded
	handler, _ := gate(newTestHandler(store, platform.ModeSingleTenant))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	users, _, _, _, _ := store.Counts()
	assert.Zero(t, users)
}

// conflictOnFirstCommit simulates losing a provisioning race: the first
// commit fails with a conflict after discarding its writes, as a unique
// violation would.
type conflictOnFirstCommit struct {
	tenancy.Store
	fired atomic.Bool
}

func (s *conflictOnFirstCommit) Begin(ctx context.Context) (tenancy.UnitOfWork, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &conflictUOW{UnitOfWork: uow, store: s}, nil
}

type conflictUOW struct {
	tenancy.UnitOfWork
	store *conflictOnFirstCommit
}

func (u *conflictUOW) Commit(ctx context.Context) error {
	if !u.store.fired.Swap(true) {
		_ = u.UnitOfWork.Rollback(ctx)
		return tenancy.ErrProvisioningConflict
	}
	return u.UnitOfWork.Commit(ctx)
}

// TestPurpose: Validates the retry-as-lookup path after a lost
// provisioning race: the loser must resolve the winner's committed row
// instead of failing the request.
// Scope: Unit Test
// Expected: 200 with the winner's user attached.
// Test Case ID: GTE-07
func TestIdentityMiddleware_ConflictRetriesAsLookup(t *testing.T) {
	inner := newSeededStore()

	// Commit the winner's user directly, simulating the concurrent
	// request that got there first.
	ctx := context.Background()
	uow, err := inner.Begin(ctx)
	require.NoError(t, err)
	winner := &identity.User{
		ID:     "01890000-0000-7000-8000-000000000001",
		Email:  "alice@example.com",
		Name:   "alice",
		Status: identity.StatusActive,
	}
	require.NoError(t, uow.Users().Create(ctx, winner))
	require.NoError(t, uow.Commit(ctx))

	store := &conflictOnFirstCommit{Store: inner}
	handler, seen := gate(newTestHandler(store, platform.ModeSingleTenant))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen.Load())
	assert.Equal(t, winner.ID, seen.Load().ID)
}

// failingCommitStore fails every commit, simulating an unreachable
// database at commit time.
type failingCommitStore struct {
	tenancy.Store
}

func (s *failingCommitStore) Begin(ctx context.Context) (tenancy.UnitOfWork, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingCommitUOW{UnitOfWork: uow}, nil
}

type failingCommitUOW struct {
	tenancy.UnitOfWork
}

func (u *failingCommitUOW) Commit(ctx context.Context) error {
	_ = u.UnitOfWork.Rollback(ctx)
	return assert.AnError
}

// TestPurpose: Validates that a commit failure is a terminal rejection
// with no partial state.
// Scope: Unit Test
// Expected: 500, downstream not reached, store untouched.
// Test Case ID: GTE-08
func TestIdentityMiddleware_CommitFailure(t *testing.T) {
	inner := newSeededStore()
	handler, seen := gate(newTestHandler(&failingCommitStore{Store: inner}, platform.ModeSingleTenant))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, seen.Load())
	users, _, _, _, _ := inner.Counts()
	assert.Zero(t, users)
}

// TestPurpose: Validates the /api/v1/me endpoint through the full
// router, including the example header derivation from the gate.
// Scope: Integration-style Test (router + middleware + handler)
// Expected: JSON body carries the provisioned user's email and derived
// name.
// Test Case ID: GTE-09
func TestRouter_Me(t *testing.T) {
	store := newSeededStore()
	h := newTestHandler(store, platform.ModeSingleTenant)
	router := NewRouter(h, NewRateLimiter(100, 100))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(identity.DefaultEmailHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var user identity.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, identity.StatusActive, user.Status)
}
