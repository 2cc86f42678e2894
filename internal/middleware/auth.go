package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
	"github.com/ardhptr21/myits-lapor/internal/response"
	"github.com/ardhptr21/myits-lapor/internal/security"
	"github.com/ardhptr21/myits-lapor/internal/service"
)

const (
	currentUserKey   = "current_user"
	accessClaimsKey  = "access_claims"
	msgTokenMissing  = "Unauthorized: token missing"
	msgTokenExpired  = "Token expired"
	msgTokenInvalid  = "Invalid token"
	msgUserNotFound  = "Unauthorized: user not found"
	msgAccessDenied  = "Access denied"
	msgNoCurrentUser = "Unauthorized"
)

type TokenParser interface {
	Parse(token string) (*security.AccessClaims, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth accepts only "Bearer <token>". The user named by the token is loaded
// again on every request so deleted accounts lose access immediately.
func Auth(tokens TokenParser, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, http.StatusUnauthorized, msgTokenMissing)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("access token rejected")
			switch {
			case errors.Is(err, security.ErrTokenExpired):
				response.Abort(c, http.StatusUnauthorized, msgTokenExpired)
			case errors.Is(err, security.ErrTokenMissing):
				response.Abort(c, http.StatusUnauthorized, msgTokenMissing)
			default:
				response.Abort(c, http.StatusUnauthorized, msgTokenInvalid)
			}
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID())
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				response.Abort(c, http.StatusUnauthorized, msgUserNotFound)
				return
			}
			response.Error(c, service.Internal(err))
			return
		}

		c.Set(accessClaimsKey, *claims)
		c.Set(currentUserKey, user)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
