package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/response"
)

// Recovery turns a panic into a 500 envelope. It must run after Logger so the
// request-scoped logger, when present, carries the request id.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			l := &log
			if scoped := zerolog.Ctx(c.Request.Context()); scoped.GetLevel() != zerolog.Disabled {
				l = scoped
			}
			l.Error().
				Interface("panic", r).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			response.Abort(c, http.StatusInternalServerError, "Internal server error")
		}()
		c.Next()
	}
}
