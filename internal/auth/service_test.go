package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.OpenGorm(t)
}

// setupTestService returns a service with a cheap bcrypt cost.
func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewService(db, config.Auth{BcryptCost: 4}), db
}

func TestService_CreateUser(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	tests := []struct {
		name     string
		username string
		email    string
		password string
		role     entities.UserRole
		wantErr  error
	}{
		{
			name:     "valid admin user",
			username: "admin",
			email:    "admin@example.com",
			password: "password12345",
			role:     entities.UserRoleAdmin,
			wantErr:  nil,
		},
		{
			name:     "missing username",
			username: "",
			email:    "test@example.com",
			password: "password12345",
			role:     entities.UserRoleMember,
			wantErr:  ErrUsernameRequired,
		},
		{
			name:     "missing email",
			username: "testuser",
			email:    "",
			password: "password12345",
			role:     entities.UserRoleMember,
			wantErr:  ErrEmailRequired,
		},
		{
			name:     "missing password",
			username: "testuser",
			email:    "test@example.com",
			password: "",
			role:     entities.UserRoleMember,
			wantErr:  ErrPasswordRequired,
		},
		{
			name:     "password too short",
			username: "testuser",
			email:    "test@example.com",
			password: "short",
			role:     entities.UserRoleMember,
			wantErr:  ErrPasswordTooShort,
		},
		{
			name:     "invalid role",
			username: "testuser",
			email:    "test@example.com",
			password: "password12345",
			role:     entities.UserRole("invalid"),
			wantErr:  ErrInvalidRole,
		},
		{
			name:     "invalid username",
			username: "no spaces allowed",
			email:    "test@example.com",
			password: "password12345",
			role:     entities.UserRoleMember,
			wantErr:  ErrUsernameInvalid,
		},
		{
			name:     "invalid email",
			username: "testuser",
			email:    "not-an-email",
			password: "password12345",
			role:     entities.UserRoleMember,
			wantErr:  ErrEmailInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, member, err := svc.CreateUser(context.Background(), tt.username, tt.email, tt.password, tt.role)

			// Check for expected error (including wrapped errors)
			if tt.wantErr != nil {
				if err == nil {
					t.Errorf("CreateUser() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateUser() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("CreateUser() unexpected error = %v", err)
				return
			}
			if user == nil {
				t.Error("CreateUser() returned nil user")
				return
			}
			if user.Username != tt.username {
				t.Errorf("user.Username = %v, want %v", user.Username, tt.username)
			}
			if user.Role != tt.role {
				t.Errorf("user.Role = %v, want %v", user.Role, tt.role)
			}
			if user.PasswordHash == "" {
				t.Error("user.PasswordHash is empty")
			}
			if member == nil || member.UserID != user.ID || !member.IsActiveMember {
				t.Errorf("member profile = %+v, want an active profile for user %d", member, user.ID)
			}
		})
	}
}

func TestService_CreateUser_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	// Create first user
	_, _, err := svc.CreateUser(context.Background(), "admin", "admin@example.com", "password12345", entities.UserRoleAdmin)
	if err != nil {
		t.Fatalf("Failed to create first user: %v", err)
	}

	// Try to create duplicate username
	_, _, err = svc.CreateUser(context.Background(), "admin", "other@example.com", "password12345", entities.UserRoleMember)
	if err != ErrUserExists {
		t.Errorf("Expected ErrUserExists for duplicate username, got %v", err)
	}

	// Try to create duplicate email
	_, _, err = svc.CreateUser(context.Background(), "other", "admin@example.com", "password12345", entities.UserRoleMember)
	if err != ErrUserExists {
		t.Errorf("Expected ErrUserExists for duplicate email, got %v", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	// Create a user
	_, _, err := svc.CreateUser(context.Background(), "testuser", "test@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{
			name:     "valid credentials with username",
			username: "testuser",
			password: "password12345",
			wantErr:  nil,
		},
		{
			name:     "valid credentials with email",
			username: "test@example.com",
			password: "password12345",
			wantErr:  nil,
		},
		{
			name:     "wrong password",
			username: "testuser",
			password: "wrongpassword",
			wantErr:  ErrInvalidPassword,
		},
		{
			name:     "non-existent user",
			username: "nobody",
			password: "password12345",
			wantErr:  ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Authenticate(tt.username, tt.password)
			if err != tt.wantErr {
				t.Errorf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr == nil && user == nil {
				t.Error("Authenticate() returned nil user for valid credentials")
			}
		})
	}
}

func TestService_TokenOperations(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	// Create a user
	user, _, err := svc.CreateUser(context.Background(), "testuser", "test@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	// Generate token
	token, err := svc.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if len(token) != 64 {
		t.Errorf("Token length = %d, want 64", len(token))
	}

	// Validate token
	validatedUser, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if validatedUser.ID != user.ID {
		t.Errorf("ValidateToken() user.ID = %d, want %d", validatedUser.ID, user.ID)
	}

	// Validate invalid token
	_, err = svc.ValidateToken("invalid-token")
	if err != ErrInvalidToken {
		t.Errorf("ValidateToken(invalid) error = %v, want ErrInvalidToken", err)
	}

	// Revoke token
	if err := svc.RevokeToken(user.ID); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	// Validate revoked token should fail
	_, err = svc.ValidateToken(token)
	if err != ErrInvalidToken {
		t.Errorf("ValidateToken(revoked) error = %v, want ErrInvalidToken", err)
	}
}

func TestService_ChangePassword(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	// Create a user
	user, _, err := svc.CreateUser(context.Background(), "testuser", "test@example.com", "oldpassword1", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	// Change password with wrong old password
	err = svc.ChangePassword(user.ID, "wrongpassword", "newpassword1")
	if err != ErrInvalidPassword {
		t.Errorf("ChangePassword(wrong old) error = %v, want ErrInvalidPassword", err)
	}

	// Change password with correct old password
	err = svc.ChangePassword(user.ID, "oldpassword1", "newpassword1")
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	// Authenticate with new password
	_, err = svc.Authenticate("testuser", "newpassword1")
	if err != nil {
		t.Errorf("Authenticate(new password) error = %v", err)
	}

	// Old password should no longer work
	_, err = svc.Authenticate("testuser", "oldpassword1")
	if err != ErrInvalidPassword {
		t.Errorf("Authenticate(old password) error = %v, want ErrInvalidPassword", err)
	}
}

func TestService_HasUsers(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})

	// No users initially
	hasUsers, err := svc.HasUsers()
	if err != nil {
		t.Fatalf("HasUsers() error = %v", err)
	}
	if hasUsers {
		t.Error("HasUsers() = true, want false for empty DB")
	}

	// Create a user
	_, _, err = svc.CreateUser(context.Background(), "testuser", "test@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	// Now has users
	hasUsers, err = svc.HasUsers()
	if err != nil {
		t.Fatalf("HasUsers() after create error = %v", err)
	}
	if !hasUsers {
		t.Error("HasUsers() = false, want true after creating user")
	}
}

func TestService_CreateUser_ProvisionsExactlyOneProfile(t *testing.T) {
	svc, db := setupTestService(t)

	user, member, err := svc.CreateUser(context.Background(), "reader", "reader@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	var count int64
	db.Model(&entities.Member{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Errorf("member profiles for user = %d, want 1", count)
	}
	if member.ID == 0 {
		t.Error("member.ID = 0, want persisted profile")
	}
}

func TestService_CreateUser_DuplicateLeavesNoOrphanProfile(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateUser(ctx, "reader", "reader@example.com", "password12345", entities.UserRoleMember); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, _, err := svc.CreateUser(ctx, "reader", "other@example.com", "password12345", entities.UserRoleMember); !errors.Is(err, ErrUserExists) {
		t.Fatalf("CreateUser(duplicate) error = %v, want ErrUserExists", err)
	}

	var users, profiles int64
	db.Model(&entities.User{}).Count(&users)
	db.Model(&entities.Member{}).Count(&profiles)
	if users != 1 || profiles != 1 {
		t.Errorf("users = %d, profiles = %d, want 1 and 1", users, profiles)
	}
}

func TestService_CreateUser_ConcurrentSameUsername(t *testing.T) {
	svc, db := setupTestService(t)

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.CreateUser(context.Background(), "racer", "racer@example.com", "password12345", entities.UserRoleMember)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("successful creations = %d, want 1 (errors: %v)", succeeded, errs)
	}

	var profiles int64
	db.Model(&entities.Member{}).Count(&profiles)
	if profiles != 1 {
		t.Errorf("profiles = %d, want 1", profiles)
	}
}

func TestService_Authenticate_LocksAccount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4, MaxLoginAttempts: 2, LockoutDuration: time.Hour})

	if _, _, err := svc.CreateUser(context.Background(), "locked", "locked@example.com", "password12345", entities.UserRoleMember); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Authenticate("locked", "wrongpassword"); err != ErrInvalidPassword {
			t.Fatalf("attempt %d error = %v, want ErrInvalidPassword", i, err)
		}
	}

	if _, err := svc.Authenticate("locked", "password12345"); err != ErrAccountLocked {
		t.Errorf("Authenticate() after lockout error = %v, want ErrAccountLocked", err)
	}
}

func TestService_ValidateToken_Expired(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4, TokenExpiry: time.Minute})

	user, _, err := svc.CreateUser(context.Background(), "tokenuser", "token@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, err := svc.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	db.Model(&entities.User{}).Where("id = ?", user.ID).Update("token_created_at", time.Now().Add(-time.Hour))

	if _, err := svc.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestService_GenerateToken_UnknownUser(t *testing.T) {
	svc, _ := setupTestService(t)
	if _, err := svc.GenerateToken(999); err != ErrUserNotFound {
		t.Errorf("GenerateToken(999) error = %v, want ErrUserNotFound", err)
	}
}

func TestService_Caller(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	admin, member, err := svc.CreateUser(ctx, "admin", "admin@example.com", "password12345", entities.UserRoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	caller, err := svc.Caller(ctx, admin)
	if err != nil {
		t.Fatalf("Caller() error = %v", err)
	}
	if caller.UserID != admin.ID || !caller.IsAdmin || caller.MemberID != member.ID {
		t.Errorf("Caller() = %+v, want admin with member %d", caller, member.ID)
	}

	// An identity created outside the service has no profile yet
	bare := &entities.User{Username: "bare", Email: "bare@example.com", PasswordHash: "x", Role: entities.UserRoleMember}
	if err := db.Create(bare).Error; err != nil {
		t.Fatalf("create bare user: %v", err)
	}
	caller, err = svc.Caller(ctx, bare)
	if err != nil {
		t.Fatalf("Caller(bare) error = %v", err)
	}
	if caller.HasProfile() || caller.IsAdmin {
		t.Errorf("Caller(bare) = %+v, want non-admin without profile", caller)
	}
}
