package controllers

import (
	"net/http"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the identity the auth middleware resolved.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{
			"scope":  "private",
			"status": "ok",
			"role":   middleware.RoleFromContext(r.Context()),
		}
		if seller := middleware.SellerIDFromContext(r.Context()); seller != "" {
			payload["seller_id"] = seller
		}
		responses.WriteSuccess(w, payload)
	}
}
