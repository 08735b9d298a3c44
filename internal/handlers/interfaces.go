package handlers

import (
	"context"

	"github.com/lingopals/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth and
// profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) error
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// RelationshipEngine captures the friend request lifecycle operations the
// handlers expose over HTTP.
type RelationshipEngine interface {
	Send(ctx context.Context, userID, recipientID string) (models.FriendRequest, error)
	Accept(ctx context.Context, userID, requestID string) error
	Decline(ctx context.Context, userID, requestID string) error
	Cancel(ctx context.Context, userID, requestID string) error
	Unfriend(ctx context.Context, userID, peerID string) error
	Friends(ctx context.Context, userID string) ([]models.Profile, error)
	Recommend(ctx context.Context, userID string) ([]models.Profile, error)
	Incoming(ctx context.Context, userID string) ([]models.RequestWithProfile, error)
	OutgoingPending(ctx context.Context, userID string) ([]models.RequestWithProfile, error)
	AcceptedSent(ctx context.Context, userID string) ([]models.RequestWithProfile, error)
	DeclinedSent(ctx context.Context, userID string) ([]models.RequestWithProfile, error)
}

// AvatarMirror schedules background mirroring of avatar images.
type AvatarMirror interface {
	Enqueue(ctx context.Context, userID, sourceURL string) error
}
