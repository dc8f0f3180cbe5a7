package security

import (
	"mime"
	"net/http"

	"github.com/noah-isme/pos-terminal/internal/common"
)

// DefaultMaxBody is the request body cap used when none is configured.
const DefaultMaxBody = 64 << 10

// BodyLimit caps request bodies at Max bytes. Declared oversize bodies are
// refused up front; undeclared ones are cut off by http.MaxBytesReader and
// surface as 413 from common.DecodeJSON.
type BodyLimit struct {
	Max int64
	// RequireJSON refuses write requests whose body is not application/json.
	RequireJSON bool
}

// Middleware applies the limit.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if b.RequireJSON && hasWriteBody(r) && !isJSON(r.Header.Get("Content-Type")) {
			common.JSONError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "request body must be application/json", nil)
			return
		}
		limit := b.Max
		if limit <= 0 {
			limit = DefaultMaxBody
		}
		if r.ContentLength > limit {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]any{"max_bytes": limit})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func hasWriteBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	default:
		return false
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
