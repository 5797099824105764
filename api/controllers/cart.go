package controllers

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type cartRequest struct {
	Lines []cart.Line `json:"lines" validate:"required,min=1,max=50,dive"`
}

// GetCart decodes the cart cookie. A missing, tampered or expired cookie is
// an empty cart.
func GetCart(codec *cart.Codec, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snapshot := cart.Empty()
		if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
			opened, openErr := codec.Open(c.Value)
			switch {
			case openErr == nil:
				snapshot = opened
			case errors.Is(openErr, cart.ErrExpired):
				clearCartCookie(w, r, cfg)
			default:
				logg.Warn(logg.WithField(ctx, "reason", openErr.Error()), "cart.cookie_rejected")
				clearCartCookie(w, r, cfg)
			}
		}
		responses.WriteSuccess(ctx, w, snapshot)
	}
}

// PutCart validates the submitted lines and re-seals them into the cookie.
func PutCart(codec *cart.Codec, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body cartRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snapshot := cart.Snapshot{Lines: body.Lines}.Normalize()
		if err := snapshot.Validate(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}
		value, err := codec.Seal(snapshot)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal cart"))
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    value,
			Path:     "/",
			MaxAge:   int(codec.TTL().Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
			SameSite: http.SameSiteLaxMode,
		})
		responses.WriteSuccess(ctx, w, snapshot)
	}
}

func clearCartCookie(w http.ResponseWriter, r *http.Request, cfg config.CartConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
