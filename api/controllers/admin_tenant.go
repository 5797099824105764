package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/session"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type tenantEnsurer interface {
	EnsureTenantID(ctx context.Context, s *session.Session) (uuid.UUID, error)
}

// AdminTenant returns the caller's tenant, attaching one if needed.
func AdminTenant(svc tenantEnsurer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s := session.FromContext(ctx)
		if s == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		tenantID, err := svc.EnsureTenantID(ctx, s)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, map[string]string{"tenantId": tenantID.String()})
	}
}
