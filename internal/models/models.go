package models

import "time"

// User represents an account within the LingoPals platform.
type User struct {
	ID               string
	Email            string
	Password         string
	FullName         string
	Bio              string
	ProfilePic       string
	NativeLanguage   string
	LearningLanguage string
	Location         string
	IsOnboarded      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile is the public projection of a user shown to other members.
// It deliberately omits email, password hash and onboarding state.
type Profile struct {
	ID               string `json:"id"`
	FullName         string `json:"fullName"`
	ProfilePic       string `json:"profilePic"`
	NativeLanguage   string `json:"nativeLanguage"`
	LearningLanguage string `json:"learningLanguage"`
	Bio              string `json:"bio"`
	Location         string `json:"location"`
}

// Profile returns the public projection for the user.
func (u User) Profile() Profile {
	return Profile{
		ID:               u.ID,
		FullName:         u.FullName,
		ProfilePic:       u.ProfilePic,
		NativeLanguage:   u.NativeLanguage,
		LearningLanguage: u.LearningLanguage,
		Bio:              u.Bio,
		Location:         u.Location,
	}
}

// RequestStatus enumerates the lifecycle states of a friend request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Active reports whether the status blocks creation of a new request
// for the same pair of users.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// FriendRequest represents the invitation workflow between two users.
type FriendRequest struct {
	ID          string
	Sender      string
	Recipient   string
	Status      RequestStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// RequestWithProfile pairs a friend request with the public profile of
// the counterpart relevant to the viewer.
type RequestWithProfile struct {
	FriendRequest
	Peer Profile
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
