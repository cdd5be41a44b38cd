package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// AuthController serves the identity endpoints under /api/auth.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	config         config.Auth
	throttle       *loginThrottle
	audit          *audit.Service

	// Serializes registration so only one request can become the first admin
	registerMu sync.Mutex
}

// NewAuthController creates a new authentication controller. auditService
// may be nil.
func NewAuthController(service *Service, sessionManager *SessionManager, cfg config.Auth, auditService *audit.Service) *AuthController {
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		config:         cfg,
		throttle:       newLoginThrottle(cfg),
		audit:          auditService,
	}
}

// RegisterRoutes registers authentication routes on the router group.
func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	group.POST("/register", ac.Register)
	group.POST("/login", ac.Login)
	group.POST("/logout", ac.Logout)
	group.GET("/csrf", ac.CSRFToken)
	group.GET("/me", requireAuth, ac.Me)
	group.POST("/token", requireAuth, ac.IssueToken)
	group.DELETE("/token", requireAuth, ac.RevokeToken)
	group.POST("/password", requireAuth, ac.ChangePassword)
}

// Stop ends the login throttle's sweep goroutine.
func (ac *AuthController) Stop() {
	ac.throttle.stop()
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Admin    bool   `json:"admin"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// Register creates an identity and its member profile. The very first
// identity becomes an administrator. Afterwards self-service sign-up depends
// on AUTH_OPEN_REGISTRATION, and only administrators may create other
// administrators.
func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "validation", err.Error())
		return
	}

	ac.registerMu.Lock()
	defer ac.registerMu.Unlock()

	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, "internal", "failed to check users")
		return
	}

	callerIsAdmin := GetUserRole(c) == entities.UserRoleAdmin
	role := entities.UserRoleMember
	switch {
	case !hasUsers:
		role = entities.UserRoleAdmin
	case req.Admin && !callerIsAdmin:
		abortJSON(c, http.StatusForbidden, "forbidden", "only administrators can create administrators")
		return
	case req.Admin:
		role = entities.UserRoleAdmin
	case !ac.config.OpenRegistration && !callerIsAdmin:
		abortJSON(c, http.StatusForbidden, "forbidden", "registration is closed")
		return
	}

	user, member, err := ac.service.CreateUser(c.Request.Context(), req.Username, req.Email, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			abortJSON(c, http.StatusConflict, "conflict", err.Error())
		case errors.Is(err, ErrUsernameInvalid), errors.Is(err, ErrEmailInvalid),
			errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong),
			errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrEmailRequired),
			errors.Is(err, ErrPasswordRequired):
			abortJSON(c, http.StatusBadRequest, "validation", err.Error())
		default:
			log.Printf("[AUTH] Failed to create user %q: %v", req.Username, err)
			abortJSON(c, http.StatusInternalServerError, "internal", "failed to create user")
		}
		return
	}

	ac.logAuth(c, user.ID, "register", true)
	c.JSON(http.StatusCreated, gin.H{
		"user":   user,
		"member": member,
	})
}

// Login checks credentials and starts a cookie session.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "validation", err.Error())
		return
	}

	ip := c.ClientIP()
	if wait := ac.throttle.blocked(ip, req.Username); wait > 0 {
		abortRateLimited(c, "too many login attempts", wait)
		return
	}

	user, err := ac.service.Authenticate(req.Username, req.Password)
	if err != nil {
		ac.logAuth(c, 0, "login", false)
		if errors.Is(err, ErrAccountLocked) {
			abortRateLimited(c, err.Error(), ac.throttle.lockout)
			return
		}
		if ac.throttle.fail(ip, req.Username) {
			log.Printf("[AUTH] Login for %q from %s throttled after repeated failures", req.Username, ip)
		}
		// Same answer for unknown user and wrong password
		abortJSON(c, http.StatusUnauthorized, "unauthenticated", "invalid username or password")
		return
	}
	ac.throttle.succeed(ip, req.Username)

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			log.Printf("[AUTH] Failed to create session for user %d: %v", user.ID, err)
			abortJSON(c, http.StatusInternalServerError, "internal", "failed to create session")
			return
		}
	}

	ac.logAuth(c, user.ID, "login", true)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout ends the cookie session. It succeeds for anonymous callers too.
func (ac *AuthController) Logout(c *gin.Context) {
	userID := GetUserID(c)
	if ac.sessionManager != nil {
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			log.Printf("[AUTH] Failed to destroy session: %v", err)
		}
	}
	if userID != 0 {
		ac.logAuth(c, userID, "logout", true)
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// CSRFToken returns the token cookie-authenticated clients must send in the
// X-CSRF-Token header of unsafe requests.
func (ac *AuthController) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c)})
}

// Me describes the current identity and its member profile.
func (ac *AuthController) Me(c *gin.Context) {
	user, err := ac.service.GetUserByID(GetUserID(c))
	if err != nil {
		abortJSON(c, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	caller := GetCaller(c)
	resp := gin.H{
		"user":      user,
		"member_id": caller.MemberID,
		"auth_type": GetAuthType(c),
	}
	if ac.sessionManager != nil && GetAuthType(c) == AuthTypeSession {
		if session := ac.sessionManager.GetSessionData(c.Request); session != nil {
			resp["login_at"] = session.LoginAt
		}
	}
	c.JSON(http.StatusOK, resp)
}

// IssueToken creates (or replaces) the caller's API bearer token.
func (ac *AuthController) IssueToken(c *gin.Context) {
	userID := GetUserID(c)
	token, err := ac.service.GenerateToken(userID)
	if err != nil {
		log.Printf("[AUTH] Failed to generate token for user %d: %v", userID, err)
		abortJSON(c, http.StatusInternalServerError, "internal", "failed to generate token")
		return
	}
	ac.logAuth(c, userID, "token_issue", true)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RevokeToken removes the caller's API bearer token.
func (ac *AuthController) RevokeToken(c *gin.Context) {
	userID := GetUserID(c)
	if err := ac.service.RevokeToken(userID); err != nil {
		abortJSON(c, http.StatusInternalServerError, "internal", "failed to revoke token")
		return
	}
	ac.logAuth(c, userID, "token_revoke", true)
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

// ChangePassword replaces the caller's password after verifying the old one.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "validation", err.Error())
		return
	}

	userID := GetUserID(c)
	err := ac.service.ChangePassword(userID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidPassword):
		abortJSON(c, http.StatusUnauthorized, "unauthenticated", "current password is incorrect")
		return
	case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong):
		abortJSON(c, http.StatusBadRequest, "validation", err.Error())
		return
	default:
		abortJSON(c, http.StatusInternalServerError, "internal", "failed to change password")
		return
	}

	ac.logAuth(c, userID, "password_change", true)
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (ac *AuthController) logAuth(c *gin.Context, userID uint, action string, success bool) {
	if ac.audit == nil {
		return
	}
	ac.audit.LogAuth(audit.Actor{
		UserID:    userID,
		RequestID: c.GetString(ContextKeyRequestID),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}, action, success)
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// abortRateLimited answers 429 with the wait in whole seconds, both in the
// Retry-After header and in the body for JSON clients.
func abortRateLimited(c *gin.Context, message string, wait time.Duration) {
	secs := retryAfterSeconds(wait)
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":               message,
		"code":                "rate_limited",
		"retry_after_seconds": secs,
	})
}
