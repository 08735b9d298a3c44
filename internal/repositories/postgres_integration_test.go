package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingopals/backend/internal/auth"
	"github.com/lingopals/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:        uuid.NewString(),
		Email:     "alice@example.com",
		Password:  "secret-hash",
		FullName:  "Alice Example",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := models.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.Password != user.Password || fetched.IsOnboarded {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	fetched.Bio = "Hello!"
	fetched.NativeLanguage = "English"
	fetched.LearningLanguage = "Japanese"
	fetched.Location = "Dublin, Ireland"
	fetched.IsOnboarded = true
	fetched.UpdatedAt = time.Now().UTC().Add(time.Minute)

	if err := repo.UpdateProfile(ctx, fetched); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	reloaded, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !reloaded.IsOnboarded || reloaded.NativeLanguage != "English" || reloaded.Bio != "Hello!" {
		t.Fatalf("expected profile fields to persist, got %+v", reloaded)
	}

	missing := models.User{ID: uuid.NewString(), UpdatedAt: time.Now().UTC()}
	if err := repo.UpdateProfile(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}

	if err := repo.SetProfilePic(ctx, user.ID, "https://cdn.example.com/avatars/alice.png"); err != nil {
		t.Fatalf("set profile pic: %v", err)
	}
	reloaded, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id after avatar update: %v", err)
	}
	if reloaded.ProfilePic != "https://cdn.example.com/avatars/alice.png" {
		t.Fatalf("expected avatar url persisted, got %q", reloaded.ProfilePic)
	}
}

func TestPostgresUserRepository_ListOnboardedExcluding(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	self := createTestUser(t, repo, "self@example.com", "Self User", true)
	excluded := createTestUser(t, repo, "excluded@example.com", "Excluded User", true)
	candidate := createTestUser(t, repo, "candidate@example.com", "Candidate User", true)
	createTestUser(t, repo, "fresh@example.com", "Fresh User", false)

	profiles, err := repo.ListOnboardedExcluding(ctx, self.ID, []string{excluded.ID})
	if err != nil {
		t.Fatalf("list onboarded excluding: %v", err)
	}

	if len(profiles) != 1 || profiles[0].ID != candidate.ID {
		t.Fatalf("expected only the candidate, got %+v", profiles)
	}

	// a nil exclusion list means only the caller is filtered out
	profiles, err = repo.ListOnboardedExcluding(ctx, self.ID, nil)
	if err != nil {
		t.Fatalf("list with nil exclusions: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
}

func TestPostgresFriendRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com", "Alice", true)
	bob := createTestUser(t, userRepo, "bob@example.com", "Bob", true)

	repo := NewPostgresFriendRepository(testPool)

	request := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    alice.ID,
		Recipient: bob.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := repo.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create friend request: %v", err)
	}

	// the pair index rejects duplicates in either direction
	duplicate := request
	duplicate.ID = uuid.NewString()
	if err := repo.CreateRequest(ctx, duplicate); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}

	reversed := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    bob.ID,
		Recipient: alice.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRequest(ctx, reversed); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on reversed duplicate, got %v", err)
	}

	unknownSender := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    uuid.NewString(),
		Recipient: bob.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRequest(ctx, unknownSender); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown sender, got %v", err)
	}

	found, err := repo.FindRequestByPair(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("find request by pair: %v", err)
	}
	if found.ID != request.ID || found.Status != models.StatusPending {
		t.Fatalf("unexpected request found: %+v", found)
	}

	if err := repo.MarkDeclined(ctx, request.ID); err != nil {
		t.Fatalf("mark declined: %v", err)
	}
	found, err = repo.FindRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("find request after decline: %v", err)
	}
	if found.Status != models.StatusDeclined || found.RespondedAt == nil {
		t.Fatalf("expected declined request with responded_at, got %+v", found)
	}

	if err := repo.DeleteRequest(ctx, request.ID); err != nil {
		t.Fatalf("delete request: %v", err)
	}
	if err := repo.DeleteRequest(ctx, request.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if _, err := repo.FindRequestByPair(ctx, alice.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no request after delete, got %v", err)
	}
}

func TestPostgresFriendRepository_AcceptAndDissolve(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com", "Alice", true)
	bob := createTestUser(t, userRepo, "bob@example.com", "Bob", true)

	repo := NewPostgresFriendRepository(testPool)

	request := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    alice.ID,
		Recipient: bob.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create friend request: %v", err)
	}

	if err := repo.AcceptRequest(ctx, request); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	// both directions exist after the transaction
	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := repo.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("check friendship %v: %v", pair, err)
		}
		if !ok {
			t.Fatalf("expected friendship %v after accept", pair)
		}
	}

	ids, err := repo.FriendIDs(ctx, alice.ID)
	if err != nil {
		t.Fatalf("friend ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != bob.ID {
		t.Fatalf("unexpected friend ids: %v", ids)
	}

	profiles, err := repo.FriendProfiles(ctx, alice.ID)
	if err != nil {
		t.Fatalf("friend profiles: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != bob.ID || profiles[0].FullName != "Bob" {
		t.Fatalf("unexpected friend profiles: %+v", profiles)
	}

	missing := models.FriendRequest{ID: uuid.NewString(), Sender: alice.ID, Recipient: bob.ID}
	if err := repo.AcceptRequest(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound accepting unknown request, got %v", err)
	}

	if err := repo.DissolvePair(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("dissolve pair: %v", err)
	}

	ok, err := repo.AreFriends(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("check friendship after dissolve: %v", err)
	}
	if ok {
		t.Fatalf("expected friendship removed")
	}
	if _, err := repo.FindRequestByPair(ctx, alice.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected request removed with friendship, got %v", err)
	}

	// dissolving again is a no-op
	if err := repo.DissolvePair(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("dissolve empty pair: %v", err)
	}
}

func TestPostgresFriendRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, userRepo, "alice@example.com", "Alice", true)
	bob := createTestUser(t, userRepo, "bob@example.com", "Bob", true)
	carol := createTestUser(t, userRepo, "carol@example.com", "Carol", true)

	repo := NewPostgresFriendRepository(testPool)

	toBob := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    alice.ID,
		Recipient: bob.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	fromCarol := models.FriendRequest{
		ID:        uuid.NewString(),
		Sender:    carol.ID,
		Recipient: alice.ID,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	for _, req := range []models.FriendRequest{toBob, fromCarol} {
		if err := repo.CreateRequest(ctx, req); err != nil {
			t.Fatalf("create request %s: %v", req.ID, err)
		}
	}

	incoming, err := repo.IncomingByStatus(ctx, alice.ID, models.StatusPending)
	if err != nil {
		t.Fatalf("incoming by status: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != fromCarol.ID {
		t.Fatalf("unexpected incoming: %+v", incoming)
	}
	if incoming[0].Peer.ID != carol.ID || incoming[0].Peer.FullName != "Carol" {
		t.Fatalf("expected sender profile attached, got %+v", incoming[0].Peer)
	}

	outgoing, err := repo.OutgoingByStatus(ctx, alice.ID, models.StatusPending)
	if err != nil {
		t.Fatalf("outgoing by status: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].ID != toBob.ID || outgoing[0].Peer.ID != bob.ID {
		t.Fatalf("unexpected outgoing: %+v", outgoing)
	}

	if err := repo.MarkDeclined(ctx, toBob.ID); err != nil {
		t.Fatalf("mark declined: %v", err)
	}

	declined, err := repo.OutgoingByStatus(ctx, alice.ID, models.StatusDeclined)
	if err != nil {
		t.Fatalf("declined outgoing: %v", err)
	}
	if len(declined) != 1 || declined[0].ID != toBob.ID {
		t.Fatalf("unexpected declined outgoing: %+v", declined)
	}

	outgoing, err = repo.OutgoingByStatus(ctx, alice.ID, models.StatusPending)
	if err != nil {
		t.Fatalf("pending outgoing after decline: %v", err)
	}
	if len(outgoing) != 0 {
		t.Fatalf("expected no pending outgoing, got %+v", outgoing)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com", "Owner", true)

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken:    uuid.NewString(),
		AccessToken:     uuid.NewString(),
		UserID:          user.ID,
		AccessExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		ExpiresAt:       expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	byAccess, err := store.FindByAccess(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("find session by access token: %v", err)
	}
	if byAccess.RefreshToken != session.RefreshToken {
		t.Fatalf("expected matching session, got %+v", byAccess)
	}

	updated := session
	updated.AccessToken = uuid.NewString()
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}
	if loaded.AccessToken != updated.AccessToken || !timesClose(loaded.ExpiresAt, updated.ExpiresAt.UTC(), time.Millisecond) {
		t.Fatalf("expected updated session, got %+v", loaded)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE friendships, friend_requests, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email, fullName string, onboarded bool) models.User {
	t.Helper()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    "password-hash",
		FullName:    fullName,
		IsOnboarded: onboarded,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
