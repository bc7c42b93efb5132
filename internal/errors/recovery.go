package errors

import (
	"net/http"

	"github.com/copyleftdev/gaopt/internal/logging"
)

// RecoveryMiddleware returns a middleware that turns handler panics into a
// logged stack-carrying error and a 500 response.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err := Errorf("handler panicked: %v", rec).
					WithOperation(r.Method + " " + r.URL.Path).
					WithComponent("http")
				logger.Error("Recovered from panic", map[string]interface{}{
					"error": err.Error(),
					"stack": err.StackTrace(),
					"query": r.URL.RawQuery,
				})

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
