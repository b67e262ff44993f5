package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

// guard admits requests whose context role satisfies allowed. Requests
// without a role are always refused.
func guard(allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := RoleFromContext(r.Context()); role == "" || !allowed(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require gates a route on one permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return defaultChecker.Has(role, perm) })
}

// RequireAny gates a route that serves both own-resource and any-resource
// callers, e.g. session:view-own or session:view-all. The handler narrows
// further once it has loaded the resource.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return defaultChecker.Any(role, perms...) })
}
