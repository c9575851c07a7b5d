package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	respond "github.com/CARBONMOLECULE09/bear-code/internal/api/respond"
	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
)

// Middleware turns a handler panic into a logged 500. A panic after a partial
// write still logs but cannot change the already-sent status.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("user_id", r.Header.Get(auth.UserIDHeader)).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			respond.WriteInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
