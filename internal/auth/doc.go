// Package auth owns identities: creating them together with their member
// profile, checking passwords and API tokens, and turning the request's
// credentials into a policy.Caller.
//
// Two credentials are accepted:
//   - a session cookie, issued by POST /api/auth/login and stored with scs
//   - a Bearer token, issued by POST /api/auth/token and stored as a SHA-256 hash
//
// The middleware never rejects a request. Anonymous requests carry
// policy.Anonymous and it is up to RequireAuth or the policy
// package to refuse them.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>     # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h              # Session duration
//	AUTH_TOKEN_EXPIRY=720h                 # API token expiry, 0 disables it
//	AUTH_BCRYPT_COST=12                    # bcrypt cost factor
//	AUTH_MIN_PASSWORD_LENGTH=12            # Shortest accepted password
//	AUTH_SECURE_COOKIES=true               # HTTPS-only cookies, plus HSTS
//	AUTH_OPEN_REGISTRATION=false           # Let anyone self-register as a member
//
// # Usage
//
//	authService := auth.NewService(db.DB, cfg.Auth)
//	sessions, _ := auth.NewSessionManager(sqlDB, cfg.Auth)
//	authMiddleware := auth.NewMiddleware(authService, sessions)
//	router.Use(sessions.SessionLoadSave(), authMiddleware.Handler())
//
// Extract the caller in handlers:
//
//	caller := auth.GetCaller(c) // policy.Anonymous when unauthenticated
package auth
