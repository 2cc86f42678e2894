package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/response"
)

// RequireRole admits only users holding exactly role. It must run after Auth.
func RequireRole(role models.Role) gin.HandlerFunc {
	if !role.Valid() {
		panic(fmt.Sprintf("middleware: unknown role %q", role))
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, msgNoCurrentUser)
			return
		}

		if user.Role != role {
			response.Abort(c, http.StatusForbidden, msgAccessDenied)
			return
		}

		c.Next()
	}
}
