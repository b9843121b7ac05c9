package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"chatify/internal/models"

	"github.com/gorilla/mux"
)

// MediaSource opens stored media by object name.
type MediaSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, models.MediaObject, error)
}

// NewMediaHandler serves uploaded images. Object names are content hashes,
// so responses are cached for a long time.
func NewMediaHandler(media MediaSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, obj, err := media.Open(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			slog.Error("failed to open media", "name", mux.Vars(r)["name"], "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", obj.MimeType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if obj.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, rc); err != nil {
			slog.Debug("media copy interrupted", "name", obj.ID, "error", err)
		}
	}
}
