package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imyashkale/fleetctl/internal/logger"
)

// Roles known to the API. An admin may do everything a member may.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

const (
	contextUserID = "user_id"
	contextRole   = "role"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingUserID     = errors.New("missing user ID in token")
	ErrUnknownRole       = errors.New("unknown role")
)

// Claims carried by API tokens
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var roleRank = map[string]int{
	RoleMember: 1,
	RoleAdmin:  2,
}

// IssueToken signs an HS256 token for subject with the given role
func IssueToken(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	if _, ok := roleRank[role]; !ok {
		return "", ErrUnknownRole
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns its claims
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingUserID
	}
	if _, ok := roleRank[claims.Role]; !ok {
		return nil, ErrUnknownRole
	}
	return claims, nil
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on websocket upgrades, so the access_token query parameter is
// accepted as well.
func bearerToken(c *gin.Context) (string, error) {
	const prefix = "Bearer "
	if h := c.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(h, prefix) || len(h) == len(prefix) {
			return "", ErrMissingAuthHeader
		}
		return h[len(prefix):], nil
	}
	if q := c.Query("access_token"); q != "" {
		return q, nil
	}
	return "", ErrMissingAuthHeader
}

// Authentication middleware validates HS256 JWT tokens and stores the
// subject and role in the context
func Authentication(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid authorization header",
			})
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = "token_expired"
			}
			logger.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Authentication failed: token validation error")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   code,
				"message": err.Error(),
			})
			return
		}

		c.Set(contextUserID, claims.Subject)
		c.Set(contextRole, claims.Role)

		logger.WithFields(map[string]interface{}{
			"user_id": claims.Subject,
			"role":    claims.Role,
			"path":    c.Request.URL.Path,
		}).Debug("Authentication successful")

		c.Next()
	}
}

// RequireRole rejects requests whose role ranks below role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(c, role) {
			logger.WithFields(map[string]interface{}{
				"user_id": UserID(c),
				"role":    Role(c),
				"path":    c.Request.URL.Path,
			}).Warn("Authorization failed: insufficient role")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "This operation requires the " + role + " role",
			})
			return
		}
		c.Next()
	}
}

// HasRole reports whether the authenticated caller holds at least role
func HasRole(c *gin.Context, role string) bool {
	need, ok := roleRank[role]
	if !ok {
		return false
	}
	return roleRank[Role(c)] >= need
}

// UserID returns the authenticated subject, or "" before authentication
func UserID(c *gin.Context) string {
	return c.GetString(contextUserID)
}

// Role returns the authenticated role, or "" before authentication
func Role(c *gin.Context) string {
	return c.GetString(contextRole)
}
