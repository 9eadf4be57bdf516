// Package auth authenticates inbox API requests.
//
// # Tokens
//
// Viewers present an HS256 JWT whose sub claim is their participant ID:
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Server.JWTSecret))
//	token, err := verifier.Generate("alice", 24*time.Hour)
//
// Secrets shorter than MinSecretLength are rejected.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware verifies the bearer token, checks that the
// participant exists and is active, and stores an AuthContext in the
// request context:
//
//	router.Use(auth.HTTPAuthMiddleware(store, verifier, logger))
//
// Handlers read it back with FromContext. Missing, malformed, expired or
// unknown tokens get 401; deactivated viewers get 403.
package auth
