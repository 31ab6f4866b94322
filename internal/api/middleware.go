package api

import (
	"net/http"

	"github.com/cwoolley/playbook/internal/domain"
)

// EmailHeader names the signed-in user for the allow-list.
const EmailHeader = "X-User-Email"

// allowList rejects requests whose EmailHeader is not allowed. A nil
// allowed func disables the check.
func allowList(allowed func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowed == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(r.Header.Get(EmailHeader)) {
				handleError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
