package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// CoachIDKey is the context key for the authenticated coach.
	CoachIDKey = "coach_id"
)

// ErrUnauthenticated indicates the request carries no valid coach identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// CoachClaims are the JWT claims issued by the identity provider.
// Session issuance and refresh live outside this service; this middleware
// only verifies the token and injects the coach identity.
type CoachClaims struct {
	CoachID string `json:"coach_id"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that validates bearer tokens and sets
// coach_id in the request context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Authorization header required",
				},
			})
			return
		}

		claims := &CoachClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			return
		}

		coachID, err := uuid.Parse(claims.CoachID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid coach identity",
				},
			})
			return
		}

		c.Set(CoachIDKey, coachID)
		c.Next()
	}
}

// GetCoachID extracts the authenticated coach ID from the context.
func GetCoachID(c *gin.Context) (uuid.UUID, error) {
	if v, exists := c.Get(CoachIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id, nil
		}
	}
	return uuid.Nil, ErrUnauthenticated
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader(AuthorizationHeader)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, BearerPrefix)
}
