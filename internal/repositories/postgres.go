package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lingopals/backend/internal/db"
	"github.com/lingopals/backend/internal/models"
)

const profileColumns = `id, full_name, profile_pic, native_language, learning_language, bio, location`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, full_name, bio, profile_pic,
                           native_language, learning_language, location, is_onboarded,
                           created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, user.ID, user.Email, user.Password, user.FullName, user.Bio, user.ProfilePic,
		user.NativeLanguage, user.LearningLanguage, user.Location, user.IsOnboarded,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, full_name, bio, profile_pic,
               native_language, learning_language, location, is_onboarded,
               created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// FindByID fetches a user by their identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, full_name, bio, profile_pic,
               native_language, learning_language, location, is_onboarded,
               created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}

	return user, nil
}

// UpdateProfile modifies the profile fields and onboarding flag of an existing user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET full_name = $2, bio = $3, profile_pic = $4, native_language = $5,
            learning_language = $6, location = $7, is_onboarded = $8, updated_at = $9
        WHERE id = $1
    `, user.ID, user.FullName, user.Bio, user.ProfilePic, user.NativeLanguage,
		user.LearningLanguage, user.Location, user.IsOnboarded, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetProfilePic records the hosted avatar URL for a user.
func (r *PostgresUserRepository) SetProfilePic(ctx context.Context, userID, url string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET profile_pic = $2, updated_at = $3
        WHERE id = $1
    `, userID, url, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update profile pic: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListOnboardedExcluding returns public profiles of onboarded users other
// than selfID and any id in exclude, ordered by name for stable output.
func (r *PostgresUserRepository) ListOnboardedExcluding(ctx context.Context, selfID string, exclude []string) ([]models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if exclude == nil {
		exclude = []string{}
	}

	rows, err := conn.Query(ctx, `
        SELECT `+profileColumns+`
        FROM users
        WHERE is_onboarded
          AND id <> $1
          AND id <> ALL($2)
        ORDER BY full_name, id
    `, selfID, exclude)
	if err != nil {
		return nil, fmt.Errorf("query recommendable users: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// PostgresFriendRepository provides PostgreSQL-backed persistence for
// friend requests and the friendship adjacency set.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// CreateRequest persists a new friend request. The unique index on the
// unordered sender/recipient pair turns a concurrent duplicate into
// ErrConflict.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (id, sender_id, recipient_id, status, created_at, responded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, request.ID, request.Sender, request.Recipient, string(request.Status), request.CreatedAt, request.RespondedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// FindRequest fetches a friend request by its identifier.
func (r *PostgresFriendRepository) FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, sender_id, recipient_id, status, created_at, responded_at
        FROM friend_requests
        WHERE id = $1
    `, requestID)

	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request: %w", err)
	}

	return request, nil
}

// FindRequestByPair fetches the request between two users regardless of
// direction. At most one row can exist per unordered pair.
func (r *PostgresFriendRepository) FindRequestByPair(ctx context.Context, userA, userB string) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, sender_id, recipient_id, status, created_at, responded_at
        FROM friend_requests
        WHERE (sender_id = $1 AND recipient_id = $2)
           OR (sender_id = $2 AND recipient_id = $1)
    `, userA, userB)

	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request by pair: %w", err)
	}

	return request, nil
}

// DeleteRequest removes a friend request record.
func (r *PostgresFriendRepository) DeleteRequest(ctx context.Context, requestID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM friend_requests
        WHERE id = $1
    `, requestID)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkDeclined moves a request to the declined state.
func (r *PostgresFriendRepository) MarkDeclined(ctx context.Context, requestID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_requests
        SET status = $2, responded_at = $3
        WHERE id = $1
    `, requestID, string(models.StatusDeclined), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("decline friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AcceptRequest marks the request accepted and inserts both directions of
// the friendship in a single retried transaction, so the symmetry
// invariant holds even if the server dies mid-operation.
func (r *PostgresFriendRepository) AcceptRequest(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgxv5.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE friend_requests
            SET status = $2, responded_at = $3
            WHERE id = $1
        `, request.ID, string(models.StatusAccepted), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("accept friend request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO friendships (user_id, friend_id)
            VALUES ($1, $2), ($2, $1)
            ON CONFLICT DO NOTHING
        `, request.Sender, request.Recipient)
		if err != nil {
			return fmt.Errorf("insert friendship pair: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("accept transaction: %w", err)
	}

	return nil
}

// DissolvePair removes both directions of the friendship and any request
// record for the pair in one transaction. It is a no-op when nothing
// exists, matching the unconditional unfriend semantics.
func (r *PostgresFriendRepository) DissolvePair(ctx context.Context, userA, userB string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgxv5.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            DELETE FROM friendships
            WHERE (user_id = $1 AND friend_id = $2)
               OR (user_id = $2 AND friend_id = $1)
        `, userA, userB); err != nil {
			return fmt.Errorf("delete friendship pair: %w", err)
		}

		if _, err := tx.Exec(ctx, `
            DELETE FROM friend_requests
            WHERE (sender_id = $1 AND recipient_id = $2)
               OR (sender_id = $2 AND recipient_id = $1)
        `, userA, userB); err != nil {
			return fmt.Errorf("delete friend request for pair: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("dissolve transaction: %w", err)
	}

	return nil
}

// AreFriends reports whether userA's friends set contains userB. Rows are
// written in pairs, so one direction suffices.
func (r *PostgresFriendRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	row := conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM friendships
            WHERE user_id = $1 AND friend_id = $2
        )
    `, userA, userB)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}

	return exists, nil
}

// FriendIDs returns the identifiers in the user's friends set.
func (r *PostgresFriendRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT friend_id
        FROM friendships
        WHERE user_id = $1
        ORDER BY friend_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend ids: %w", err)
	}

	return ids, nil
}

// FriendProfiles resolves the user's friends set to public profiles.
func (r *PostgresFriendRepository) FriendProfiles(ctx context.Context, userID string) ([]models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT u.id, u.full_name, u.profile_pic, u.native_language, u.learning_language, u.bio, u.location
        FROM friendships f
        JOIN users u ON u.id = f.friend_id
        WHERE f.user_id = $1
        ORDER BY u.full_name, u.id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend profiles: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// IncomingByStatus returns requests addressed to the user with the given
// status, enriched with each sender's public profile.
func (r *PostgresFriendRepository) IncomingByStatus(ctx context.Context, recipientID string, status models.RequestStatus) ([]models.RequestWithProfile, error) {
	return r.listWithPeer(ctx, `
        SELECT fr.id, fr.sender_id, fr.recipient_id, fr.status, fr.created_at, fr.responded_at,
               u.id, u.full_name, u.profile_pic, u.native_language, u.learning_language, u.bio, u.location
        FROM friend_requests fr
        JOIN users u ON u.id = fr.sender_id
        WHERE fr.recipient_id = $1 AND fr.status = $2
        ORDER BY fr.created_at DESC, fr.id
    `, recipientID, status)
}

// OutgoingByStatus returns requests sent by the user with the given
// status, enriched with each recipient's public profile.
func (r *PostgresFriendRepository) OutgoingByStatus(ctx context.Context, senderID string, status models.RequestStatus) ([]models.RequestWithProfile, error) {
	return r.listWithPeer(ctx, `
        SELECT fr.id, fr.sender_id, fr.recipient_id, fr.status, fr.created_at, fr.responded_at,
               u.id, u.full_name, u.profile_pic, u.native_language, u.learning_language, u.bio, u.location
        FROM friend_requests fr
        JOIN users u ON u.id = fr.recipient_id
        WHERE fr.sender_id = $1 AND fr.status = $2
        ORDER BY fr.created_at DESC, fr.id
    `, senderID, status)
}

func (r *PostgresFriendRepository) listWithPeer(ctx context.Context, query, userID string, status models.RequestStatus) ([]models.RequestWithProfile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.RequestWithProfile
	for rows.Next() {
		var (
			req         models.RequestWithProfile
			rawStatus   string
			respondedAt sql.NullTime
		)

		if err := rows.Scan(&req.ID, &req.Sender, &req.Recipient, &rawStatus, &req.CreatedAt, &respondedAt,
			&req.Peer.ID, &req.Peer.FullName, &req.Peer.ProfilePic, &req.Peer.NativeLanguage,
			&req.Peer.LearningLanguage, &req.Peer.Bio, &req.Peer.Location); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}

		req.Status = models.RequestStatus(rawStatus)
		if respondedAt.Valid {
			t := respondedAt.Time.UTC()
			req.RespondedAt = &t
		}

		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.FullName, &user.Bio,
		&user.ProfilePic, &user.NativeLanguage, &user.LearningLanguage, &user.Location,
		&user.IsOnboarded, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func scanRequest(row pgx.Row) (models.FriendRequest, error) {
	var (
		request     models.FriendRequest
		rawStatus   string
		respondedAt sql.NullTime
	)
	err := row.Scan(&request.ID, &request.Sender, &request.Recipient, &rawStatus,
		&request.CreatedAt, &respondedAt)
	if err != nil {
		return models.FriendRequest{}, err
	}

	request.Status = models.RequestStatus(rawStatus)
	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		request.RespondedAt = &t
	}

	return request, nil
}

func collectProfiles(rows pgx.Rows) ([]models.Profile, error) {
	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.ProfilePic, &p.NativeLanguage,
			&p.LearningLanguage, &p.Bio, &p.Location); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FriendRepository = (*PostgresFriendRepository)(nil)
