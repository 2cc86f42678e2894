package handlers

import (
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/ardhptr21/myits-lapor/internal/response"
	"github.com/ardhptr21/myits-lapor/internal/storage"
)

// ServeUpload streams a stored photo. Range and conditional requests are
// handled by http.ServeContent.
func (h HandlerSet) ServeUpload(c *gin.Context) {
	key, err := h.layout.Key(c.Request.URL.Path)
	if err != nil {
		h.NotFound(c)
		return
	}

	f, info, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			h.NotFound(c)
			return
		}
		response.Error(c, err)
		return
	}
	defer f.Close()

	if info.ContentType != "" {
		c.Header("Content-Type", info.ContentType)
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime, f)
}
