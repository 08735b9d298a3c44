package handlers

import (
	"net/http"

	"github.com/lingopals/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users         UserStore
	Sessions      SessionManager
	Authenticator middleware.Authenticator
	Relationships RelationshipEngine
	Avatars       AvatarMirror
	AuthLimiter   RateLimiter
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	users := UserHandler{Users: deps.Users, Relationships: deps.Relationships, Avatars: deps.Avatars}
	friends := FriendHandler{Relationships: deps.Relationships}

	protect := middleware.RequireUser(deps.Authenticator)
	protected := func(h http.HandlerFunc) http.Handler {
		return protect(h)
	}

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/password-reset", auth.RequestPasswordReset)

	mux.Handle("/api/v1/users/recommended", protected(users.Recommended))
	mux.Handle("/api/v1/users/me", protected(users.Me))
	mux.Handle("/api/v1/users/onboarding", protected(users.Onboarding))

	mux.Handle("/api/v1/friends", protected(friends.List))
	mux.Handle("/api/v1/friends/request", protected(friends.Send))
	mux.Handle("/api/v1/friends/accept", protected(friends.Accept))
	mux.Handle("/api/v1/friends/decline", protected(friends.Decline))
	mux.Handle("/api/v1/friends/cancel", protected(friends.Cancel))
	mux.Handle("/api/v1/friends/remove", protected(friends.Unfriend))
	mux.Handle("/api/v1/friends/requests", protected(friends.Requests))
	mux.Handle("/api/v1/friends/requests/outgoing", protected(friends.Outgoing))
}
