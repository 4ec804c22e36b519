package media

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
)

// Handler serves blobs by key. Mount it below the public base URL with the
// prefix stripped, eg http.StripPrefix("/media", media.Handler(store)).
func Handler(store BlobStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/")
		if key == "" || strings.Contains(key, "/") {
			http.NotFound(w, r)
			return
		}

		var buf bytes.Buffer
		if err := store.Get(r.Context(), key, &buf); err != nil {
			if errors.Is(err, ErrBlobNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "media unavailable", http.StatusServiceUnavailable)
			return
		}

		if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		// Keys are content addressed.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Write(buf.Bytes())
	})
}
