package repositories

import (
	"context"

	"github.com/lingopals/backend/internal/models"
)

// FriendRepository defines data access for friend requests and the
// friendship adjacency set. Pair lookups treat (A,B) and (B,A) as the
// same relationship.
type FriendRepository interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error)
	FindRequestByPair(ctx context.Context, userA, userB string) (models.FriendRequest, error)
	DeleteRequest(ctx context.Context, requestID string) error
	MarkDeclined(ctx context.Context, requestID string) error
	AcceptRequest(ctx context.Context, request models.FriendRequest) error
	DissolvePair(ctx context.Context, userA, userB string) error
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
	FriendProfiles(ctx context.Context, userID string) ([]models.Profile, error)
	IncomingByStatus(ctx context.Context, recipientID string, status models.RequestStatus) ([]models.RequestWithProfile, error)
	OutgoingByStatus(ctx context.Context, senderID string, status models.RequestStatus) ([]models.RequestWithProfile, error)
}
