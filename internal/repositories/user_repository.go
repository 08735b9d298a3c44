package repositories

import (
	"context"

	"github.com/lingopals/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, user models.User) error
	SetProfilePic(ctx context.Context, userID, url string) error
	ListOnboardedExcluding(ctx context.Context, selfID string, exclude []string) ([]models.Profile, error)
}
