package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lingopals/backend/internal/logging"
	"github.com/lingopals/backend/internal/middleware"
	"github.com/lingopals/backend/internal/models"
	"github.com/lingopals/backend/internal/repositories"
)

// UserHandler exposes profile, onboarding and discovery endpoints.
type UserHandler struct {
	Users         UserStore
	Relationships RelationshipEngine
	Avatars       AvatarMirror
}

// Recommended handles GET /api/v1/users/recommended. It returns onboarded
// members the caller has no existing relationship with.
func (h UserHandler) Recommended(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Relationships == nil {
		logger.Error("relationship engine unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "relationship services unavailable"})
		return
	}

	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	profiles, err := h.Relationships.Recommend(ctx, userID)
	if err != nil {
		status := relationshipErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("recommend users failed", "error", err)
			respondJSON(ctx, w, status, map[string]string{"error": "internal server error"})
			return
		}
		respondJSON(ctx, w, status, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(ctx, w, http.StatusOK, recommendedResponse{Users: profilesOrEmpty(profiles)})
}

// Me handles GET /api/v1/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "account not found"})
			return
		}
		logger.Error("load account failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, accountResponse{
		Profile:   user.Profile(),
		Email:     user.Email,
		Onboarded: user.IsOnboarded,
	})
}

// Onboarding handles POST /api/v1/users/onboarding. Completing onboarding
// makes the account visible in recommendations.
func (h UserHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "user services unavailable"})
		return
	}

	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid onboarding payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.NativeLanguage = strings.TrimSpace(req.NativeLanguage)
	req.LearningLanguage = strings.TrimSpace(req.LearningLanguage)
	if req.FullName == "" || req.NativeLanguage == "" || req.LearningLanguage == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "full name, native language and learning language are required"})
		return
	}

	if req.AvatarURL != "" {
		if _, err := url.ParseRequestURI(req.AvatarURL); err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid avatar url"})
			return
		}
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "account not found"})
			return
		}
		logger.Error("load account failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	user.FullName = req.FullName
	user.Bio = req.Bio
	user.NativeLanguage = req.NativeLanguage
	user.LearningLanguage = req.LearningLanguage
	user.Location = req.Location
	user.IsOnboarded = true
	if req.AvatarURL != "" {
		user.ProfilePic = req.AvatarURL
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.Users.UpdateProfile(ctx, user); err != nil {
		logger.Error("update profile failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to save profile"})
		return
	}

	// Mirroring the avatar into our own bucket happens off the request path.
	if req.AvatarURL != "" && h.Avatars != nil {
		if err := h.Avatars.Enqueue(ctx, userID, req.AvatarURL); err != nil {
			logger.Warn("avatar mirror enqueue failed", "error", err, "userId", userID)
		}
	}

	respondJSON(ctx, w, http.StatusOK, accountResponse{
		Profile:   user.Profile(),
		Email:     user.Email,
		Onboarded: true,
	})
}

type onboardingRequest struct {
	FullName         string `json:"fullName"`
	Bio              string `json:"bio"`
	NativeLanguage   string `json:"nativeLanguage"`
	LearningLanguage string `json:"learningLanguage"`
	Location         string `json:"location"`
	AvatarURL        string `json:"avatarUrl"`
}

type recommendedResponse struct {
	Users []models.Profile `json:"users"`
}

type accountResponse struct {
	Profile   models.Profile `json:"profile"`
	Email     string         `json:"email"`
	Onboarded bool           `json:"onboarded"`
}
