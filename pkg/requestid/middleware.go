package requestid

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header is the canonical request-ID header name.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

// Middleware ensures every request carries a correlation ID. A valid
// client-supplied ID is reused; anything else is replaced with a fresh UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !isValid(id) {
			id = uuid.New().String()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// Attr returns the request ID from the context as a slog attribute, and false
// when the context carries none.
func Attr(r *http.Request) (slog.Attr, bool) {
	id := FromContext(r.Context())
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

func isValid(id string) bool {
	return len(id) > 0 && len(id) <= maxIDLength && validID.MatchString(id)
}
