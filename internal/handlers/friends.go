package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lingopals/backend/internal/logging"
	"github.com/lingopals/backend/internal/middleware"
	"github.com/lingopals/backend/internal/models"
	"github.com/lingopals/backend/internal/relationships"
)

// FriendHandler exposes the friend request lifecycle and friend listings.
type FriendHandler struct {
	Relationships RelationshipEngine
}

// List handles GET /api/v1/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	friends, err := h.Relationships.Friends(ctx, userID)
	if err != nil {
		h.respondError(w, r, "list friends", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, listFriendsResponse{Friends: profilesOrEmpty(friends)})
}

// Send handles POST /api/v1/friends/request.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	var req sendFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.RecipientID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "recipientId is required"})
		return
	}

	request, err := h.Relationships.Send(ctx, userID, req.RecipientID)
	if err != nil {
		h.respondError(w, r, "send friend request", err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, friendRequestResponse{Request: toRequestPayload(request)})
}

// Accept handles POST /api/v1/friends/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept friend request", h.Relationships.Accept, "friend request accepted")
}

// Decline handles POST /api/v1/friends/decline.
func (h FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "decline friend request", h.Relationships.Decline, "friend request declined")
}

// Cancel handles POST /api/v1/friends/cancel.
func (h FriendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel friend request", h.Relationships.Cancel, "friend request cancelled")
}

// Unfriend handles POST /api/v1/friends/remove.
func (h FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	var req unfriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	if err := h.Relationships.Unfriend(ctx, userID, req.UserID); err != nil {
		h.respondError(w, r, "unfriend", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "user unfriended"})
}

// Requests handles GET /api/v1/friends/requests. It returns pending
// incoming requests plus the accepted and declined requests the caller
// sent, each enriched with the counterpart's public profile.
func (h FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	incoming, err := h.Relationships.Incoming(ctx, userID)
	if err != nil {
		h.respondError(w, r, "list incoming requests", err)
		return
	}

	accepted, err := h.Relationships.AcceptedSent(ctx, userID)
	if err != nil {
		h.respondError(w, r, "list accepted requests", err)
		return
	}

	declined, err := h.Relationships.DeclinedSent(ctx, userID)
	if err != nil {
		h.respondError(w, r, "list declined requests", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendRequestsResponse{
		Incoming: toEnrichedPayloads(incoming),
		Accepted: toEnrichedPayloads(accepted),
		Declined: toEnrichedPayloads(declined),
	})
}

// Outgoing handles GET /api/v1/friends/requests/outgoing.
func (h FriendHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	outgoing, err := h.Relationships.OutgoingPending(ctx, userID)
	if err != nil {
		h.respondError(w, r, "list outgoing requests", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, outgoingRequestsResponse{Outgoing: toEnrichedPayloads(outgoing)})
}

func (h FriendHandler) transition(w http.ResponseWriter, r *http.Request, action string, op func(ctx context.Context, userID, requestID string) error, message string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := h.requireEngineAndUser(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "requestId is required"})
		return
	}

	if err := op(ctx, userID, req.RequestID); err != nil {
		h.respondError(w, r, action, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": message})
}

func (h FriendHandler) requireEngineAndUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()

	if h.Relationships == nil {
		logging.FromContext(ctx).Error("relationship engine unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "relationship services unavailable"})
		return "", false
	}

	userID := middleware.UserIDFromContext(ctx)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}

	return userID, true
}

func (h FriendHandler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	status := relationshipErrorStatus(err)

	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error(action+" failed", "error", err)
		respondJSON(ctx, w, status, map[string]string{"error": "internal server error"})
		return
	}

	logging.FromContext(ctx).Warn(action+" rejected", "error", err)
	respondJSON(ctx, w, status, map[string]string{"error": err.Error()})
}

func relationshipErrorStatus(err error) int {
	switch {
	case errors.Is(err, relationships.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, relationships.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, relationships.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, relationships.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type sendFriendRequest struct {
	RecipientID string `json:"recipientId"`
}

type transitionRequest struct {
	RequestID string `json:"requestId"`
}

type unfriendRequest struct {
	UserID string `json:"userId"`
}

type friendRequestPayload struct {
	ID          string               `json:"id"`
	SenderID    string               `json:"senderId"`
	RecipientID string               `json:"recipientId"`
	Status      models.RequestStatus `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	RespondedAt *time.Time           `json:"respondedAt,omitempty"`
}

type enrichedRequestPayload struct {
	friendRequestPayload
	Peer models.Profile `json:"peer"`
}

type friendRequestResponse struct {
	Request friendRequestPayload `json:"request"`
}

type listFriendsResponse struct {
	Friends []models.Profile `json:"friends"`
}

type friendRequestsResponse struct {
	Incoming []enrichedRequestPayload `json:"incoming"`
	Accepted []enrichedRequestPayload `json:"accepted"`
	Declined []enrichedRequestPayload `json:"declined"`
}

type outgoingRequestsResponse struct {
	Outgoing []enrichedRequestPayload `json:"outgoing"`
}

func toRequestPayload(request models.FriendRequest) friendRequestPayload {
	return friendRequestPayload{
		ID:          request.ID,
		SenderID:    request.Sender,
		RecipientID: request.Recipient,
		Status:      request.Status,
		CreatedAt:   request.CreatedAt,
		RespondedAt: request.RespondedAt,
	}
}

func toEnrichedPayloads(requests []models.RequestWithProfile) []enrichedRequestPayload {
	payloads := make([]enrichedRequestPayload, 0, len(requests))
	for _, req := range requests {
		payloads = append(payloads, enrichedRequestPayload{
			friendRequestPayload: toRequestPayload(req.FriendRequest),
			Peer:                 req.Peer,
		})
	}
	return payloads
}

func profilesOrEmpty(profiles []models.Profile) []models.Profile {
	if profiles == nil {
		return []models.Profile{}
	}
	return profiles
}
