// Package members provides database operations for library member profiles.
//
// Every identity gets exactly one profile. EnsureProfile is called by the
// identity-creation path inside the same database transaction that inserts
// the user, so a user without a profile is never committed.
package members

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

var (
	ErrMemberNotFound = errors.New("member profile not found")
	ErrProfileExists  = errors.New("member profile was created concurrently")
)

// Repository handles all member database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new members repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// EnsureProfile returns the profile linked to userID, creating an active one
// dated today if none exists. tx may be a transaction or a plain session.
func (r *Repository) EnsureProfile(tx *gorm.DB, userID uint) (*entities.Member, error) {
	var member entities.Member
	err := tx.Where("user_id = ?", userID).First(&member).Error
	if err == nil {
		return &member, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	member = entities.Member{
		UserID:           userID,
		DateOfMembership: today(),
		IsActiveMember:   true,
	}
	if err := tx.Create(&member).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrProfileExists
		}
		return nil, err
	}
	return &member, nil
}

// Lookup reads a profile inside tx without its identity.
func (r *Repository) Lookup(tx *gorm.DB, id uint) (*entities.Member, error) {
	var member entities.Member
	err := tx.First(&member, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetByUserID resolves an identity to its member profile.
func (r *Repository) GetByUserID(ctx context.Context, userID uint) (*entities.Member, error) {
	var member entities.Member
	err := r.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetByID retrieves a member profile with its identity.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Member, error) {
	var member entities.Member
	err := r.db.WithContext(ctx).Preload("User").First(&member, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// List returns member profiles ordered by ID with the total count.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]entities.Member, int64, error) {
	var members []entities.Member
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.Member{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Preload("User").Order("id ASC").Limit(limit).Offset(offset).Find(&members).Error
	return members, total, err
}

// SetActive toggles whether the member may borrow.
func (r *Repository) SetActive(ctx context.Context, id uint, active bool) (*entities.Member, error) {
	result := r.db.WithContext(ctx).Model(&entities.Member{}).Where("id = ?", id).Update("is_active_member", active)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrMemberNotFound
	}
	return r.GetByID(ctx, id)
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
