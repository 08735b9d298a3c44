package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lingopals/backend/internal/logging"
	"github.com/lingopals/backend/internal/models"
	"github.com/lingopals/backend/internal/repositories"
)

// UserStore captures the user lookups the engine needs.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	ListOnboardedExcluding(ctx context.Context, selfID string, exclude []string) ([]models.Profile, error)
}

// FriendStore captures persistence for friend requests and the friendship
// adjacency set. AcceptRequest and DissolvePair must apply their paired
// writes atomically so the symmetry invariant cannot be observed broken.
type FriendStore interface {
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

// Engine enforces the friend request state machine and the invariants
// around the symmetric friendship set. It holds no relationship state of
// its own; every operation reads and writes the shared store.
type Engine struct {
	users   UserStore
	friends FriendStore
	nowFunc func() time.Time
}

// NewEngine constructs an Engine over the provided stores.
func NewEngine(users UserStore, friends FriendStore) *Engine {
	if users == nil || friends == nil {
		panic("relationships: stores must not be nil")
	}
	return &Engine{users: users, friends: friends}
}

// WithNowFunc overrides the time source. Useful for tests.
func (e *Engine) WithNowFunc(now func() time.Time) *Engine {
	e.nowFunc = now
	return e
}

func (e *Engine) now() time.Time {
	if e.nowFunc != nil {
		return e.nowFunc()
	}
	return time.Now().UTC()
}

// Send creates a pending friend request from userID to recipientID.
// A leftover declined record for the pair is deleted first so the pair can
// start over; a pending or accepted record is a conflict.
func (e *Engine) Send(ctx context.Context, userID, recipientID string) (models.FriendRequest, error) {
	if userID == recipientID {
		return models.FriendRequest{}, fmt.Errorf("%w: cannot send a friend request to yourself", ErrInvalid)
	}

	if _, err := e.users.FindByID(ctx, recipientID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, fmt.Errorf("%w: recipient does not exist", ErrNotFound)
		}
		return models.FriendRequest{}, fmt.Errorf("find recipient: %w", err)
	}

	already, err := e.friends.AreFriends(ctx, userID, recipientID)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("check friendship: %w", err)
	}
	if already {
		return models.FriendRequest{}, fmt.Errorf("%w: already friends with this user", ErrConflict)
	}

	existing, err := e.friends.FindRequestByPair(ctx, userID, recipientID)
	switch {
	case err == nil:
		if existing.Status.Active() {
			return models.FriendRequest{}, fmt.Errorf("%w: a friend request is already pending or accepted", ErrConflict)
		}
		if err := e.friends.DeleteRequest(ctx, existing.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, fmt.Errorf("delete declined request: %w", err)
		}
	case errors.Is(err, repositories.ErrNotFound):
		// no prior record for the pair
	default:
		return models.FriendRequest{}, fmt.Errorf("find request by pair: %w", err)
	}

	request := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    userID,
		Recipient: recipientID,
		Status:    models.StatusPending,
		CreatedAt: e.now(),
	}

	if err := e.friends.CreateRequest(ctx, request); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// lost a concurrent race for the same pair
			return models.FriendRequest{}, fmt.Errorf("%w: a friend request is already pending or accepted", ErrConflict)
		}
		return models.FriendRequest{}, fmt.Errorf("create request: %w", err)
	}

	return request, nil
}

// Accept marks the request accepted and records the friendship on both
// sides. Only the recipient of a still-pending request may accept.
func (e *Engine) Accept(ctx context.Context, userID, requestID string) error {
	ctx, span := logging.StartSpan(ctx, "relationships.accept")
	defer span.End()

	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Recipient != userID {
		return fmt.Errorf("%w: only the recipient may accept", ErrForbidden)
	}
	if request.Status != models.StatusPending {
		return fmt.Errorf("%w: request is %s, not pending", ErrInvalid, request.Status)
	}

	if err := e.friends.AcceptRequest(ctx, request); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: friend request not found", ErrNotFound)
		}
		return fmt.Errorf("accept request: %w", err)
	}
	return nil
}

// Decline marks the request declined. The record stays addressable until
// the sender re-sends (delete then recreate) or the pair is dissolved.
func (e *Engine) Decline(ctx context.Context, userID, requestID string) error {
	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Recipient != userID {
		return fmt.Errorf("%w: only the recipient may decline", ErrForbidden)
	}
	if request.Status != models.StatusPending {
		return fmt.Errorf("%w: request is %s, not pending", ErrInvalid, request.Status)
	}

	if err := e.friends.MarkDeclined(ctx, request.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: friend request not found", ErrNotFound)
		}
		return fmt.Errorf("decline request: %w", err)
	}
	return nil
}

// Cancel deletes a pending request. Only the original sender may cancel;
// accepted relationships dissolve through Unfriend instead.
func (e *Engine) Cancel(ctx context.Context, userID, requestID string) error {
	request, err := e.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Sender != userID {
		return fmt.Errorf("%w: only the sender may cancel", ErrForbidden)
	}
	if request.Status != models.StatusPending {
		return fmt.Errorf("%w: request is %s, not pending", ErrInvalid, request.Status)
	}

	if err := e.friends.DeleteRequest(ctx, request.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: friend request not found", ErrNotFound)
		}
		return fmt.Errorf("cancel request: %w", err)
	}
	return nil
}

// Unfriend removes the friendship on both sides and deletes any request
// record for the pair, restoring the state as if the two had never
// interacted. It succeeds even when no relationship exists.
func (e *Engine) Unfriend(ctx context.Context, userID, peerID string) error {
	ctx, span := logging.StartSpan(ctx, "relationships.unfriend")
	defer span.End()

	if userID == peerID {
		return fmt.Errorf("%w: cannot unfriend yourself", ErrInvalid)
	}

	if err := e.friends.DissolvePair(ctx, userID, peerID); err != nil {
		return fmt.Errorf("dissolve pair: %w", err)
	}
	return nil
}

// Friends resolves the caller's friendship set to public profiles.
func (e *Engine) Friends(ctx context.Context, userID string) ([]models.Profile, error) {
	profiles, err := e.friends.FriendProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend profiles: %w", err)
	}
	return profiles, nil
}

// Recommend returns onboarded users the caller has no relationship with:
// not themselves, not a friend, and no pending request in either
// direction. The exclusion set is recomputed on every call.
func (e *Engine) Recommend(ctx context.Context, userID string) ([]models.Profile, error) {
	if _, err := e.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: user does not exist", ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	friendIDs, err := e.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}

	incoming, err := e.friends.IncomingByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}

	outgoing, err := e.friends.OutgoingByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}

	seen := make(map[string]struct{}, len(friendIDs)+len(incoming)+len(outgoing))
	exclude := make([]string, 0, len(friendIDs)+len(incoming)+len(outgoing))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		exclude = append(exclude, id)
	}
	for _, id := range friendIDs {
		add(id)
	}
	for _, req := range incoming {
		add(req.Sender)
	}
	for _, req := range outgoing {
		add(req.Recipient)
	}

	profiles, err := e.users.ListOnboardedExcluding(ctx, userID, exclude)
	if err != nil {
		return nil, fmt.Errorf("list recommendable users: %w", err)
	}
	return profiles, nil
}

// Incoming returns pending requests addressed to the user, enriched with
// each sender's public profile.
func (e *Engine) Incoming(ctx context.Context, userID string) ([]models.RequestWithProfile, error) {
	requests, err := e.friends.IncomingByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	return requests, nil
}

// OutgoingPending returns the user's pending outgoing requests, enriched
// with each recipient's public profile.
func (e *Engine) OutgoingPending(ctx context.Context, userID string) ([]models.RequestWithProfile, error) {
	requests, err := e.friends.OutgoingByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	return requests, nil
}

// AcceptedSent returns requests the user sent that have been accepted.
func (e *Engine) AcceptedSent(ctx context.Context, userID string) ([]models.RequestWithProfile, error) {
	requests, err := e.friends.OutgoingByStatus(ctx, userID, models.StatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list accepted requests: %w", err)
	}
	return requests, nil
}

// DeclinedSent returns requests the user sent that have been declined.
func (e *Engine) DeclinedSent(ctx context.Context, userID string) ([]models.RequestWithProfile, error) {
	requests, err := e.friends.OutgoingByStatus(ctx, userID, models.StatusDeclined)
	if err != nil {
		return nil, fmt.Errorf("list declined requests: %w", err)
	}
	return requests, nil
}

func (e *Engine) loadRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	request, err := e.friends.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, fmt.Errorf("%w: friend request not found", ErrNotFound)
		}
		return models.FriendRequest{}, fmt.Errorf("find request: %w", err)
	}
	return request, nil
}
