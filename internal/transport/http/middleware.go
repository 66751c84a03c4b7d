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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/loomworks/loom/internal/audit"
	"github.com/loomworks/loom/internal/identity"
	"github.com/loomworks/loom/internal/observability/logger"
	"github.com/loomworks/loom/internal/tenancy"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// IdentityMiddleware authenticates the request from the trusted identity
// headers and attaches the resolved user to the request context. On
// first sight of an unknown identity in single-tenant mode it provisions
// the default tenancy inside one transaction; every failure path rolls
// that transaction back before the response is written, so the store is
// either fully provisioned or untouched.
func (h *Handler) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := identity.Extract(
			r.Header.Get(h.headers.EmailHeader),
			r.Header.Get(h.headers.NameHeader),
		)
		if ident.Email == "" {
			// No unit of work is opened for anonymous requests.
			status, message := statusForError(identity.ErrMissingIdentity)
			respondError(w, status, message)
			return
		}

		user, err := h.resolveUser(r.Context(), ident)
		if err != nil {
			status, message := statusForError(err)
			if status >= http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), "identity resolution failed",
					logger.Email(ident.Email), logger.Error(err))
			} else {
				h.auditLogger.Log(r.Context(), audit.Event{
					Type:     audit.TypeIdentityRejected,
					Resource: ident.Email,
					Metadata: map[string]any{audit.AttrReason: message},
				})
			}
			respondError(w, status, message)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// resolveUser runs the lookup-or-provision flow. When a concurrent
// request provisioned the same email first, the losing insert surfaces
// as a conflict; by then the winner has committed, so one retry as a
// plain lookup resolves it without bothering the caller.
func (h *Handler) resolveUser(ctx context.Context, ident identity.Identity) (*identity.User, error) {
	user, err := h.resolveOnce(ctx, ident)
	if err != nil && errors.Is(err, tenancy.ErrProvisioningConflict) {
		return h.lookupUser(ctx, ident)
	}
	return user, err
}

func (h *Handler) resolveOnce(ctx context.Context, ident identity.Identity) (*identity.User, error) {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit of work: %w", err)
	}
	// Release the transaction on every exit path. Rollback after a
	// successful commit is a no-op, and WithoutCancel keeps the release
	// working when the request context is already cancelled.
	defer uow.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	user, err := h.provisioner.Resolve(ctx, uow, ident)
	if err != nil {
		return nil, err
	}

	// No commit after an observed cancellation: Commit runs on the
	// request context, so a cancelled request fails here and the
	// deferred rollback discards the provisioned rows.
	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit unit of work: %w", err)
	}

	return user, nil
}

// lookupUser re-reads the user in a fresh unit of work after a lost
// provisioning race. A miss here means the conflicting transaction did
// not leave a usable row; surface the conflict and let the client retry.
func (h *Handler) lookupUser(ctx context.Context, ident identity.Identity) (*identity.User, error) {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open unit of work: %w", err)
	}
	defer uow.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	user, err := uow.Users().GetByEmail(ctx, ident.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, tenancy.ErrProvisioningConflict
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit unit of work: %w", err)
	}

	return user, nil
}

// statusForError maps the provisioning error taxonomy to HTTP statuses.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrMissingIdentity):
		return http.StatusUnauthorized, identity.ErrMissingIdentity.Error()
	case errors.Is(err, tenancy.ErrUnauthorizedProvisioning):
		return http.StatusUnauthorized, tenancy.ErrUnauthorizedProvisioning.Error()
	case errors.Is(err, tenancy.ErrTenancyAlreadyInitialized):
		return http.StatusBadRequest, tenancy.ErrTenancyAlreadyInitialized.Error()
	case errors.Is(err, tenancy.ErrProvisioningConflict):
		return http.StatusConflict, "concurrent provisioning detected, retry the request"
	case errors.Is(err, tenancy.ErrOwnerRoleMissing):
		return http.StatusInternalServerError, tenancy.ErrOwnerRoleMissing.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
