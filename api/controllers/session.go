package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/session"
)

type sessionView struct {
	*session.Session
	Capabilities capabilitiesView `json:"capabilities"`
}

type capabilitiesView struct {
	Admin       bool `json:"admin"`
	SuperAdmin  bool `json:"superAdmin"`
	CanInvite   bool `json:"canInvite"`
	CanViewBank bool `json:"canViewBank"`
}

// CurrentSession returns the resolved session or null for anonymous callers.
func CurrentSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		if s == nil {
			responses.WriteSuccess(r.Context(), w, nil)
			return
		}
		caps := s.Capabilities()
		responses.WriteSuccess(r.Context(), w, sessionView{
			Session: s,
			Capabilities: capabilitiesView{
				Admin:       caps.Admin,
				SuperAdmin:  caps.SuperAdmin,
				CanInvite:   caps.CanInvite,
				CanViewBank: caps.CanViewBank,
			},
		})
	}
}
