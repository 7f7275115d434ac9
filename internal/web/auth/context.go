package auth

import (
	"context"

	webcontext "github.com/showroom-auto/showroom/internal/web/context"
)

// Principal is the authenticated caller of a request
type Principal = webcontext.Principal

// CurrentPrincipal returns the authenticated caller, if any
func CurrentPrincipal(ctx context.Context) (Principal, bool) {
	return webcontext.GetPrincipal(ctx)
}

// WithPrincipal returns a context carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return webcontext.SetPrincipal(ctx, p)
}

// IsAdmin reports whether the request was made by an admin
func IsAdmin(ctx context.Context) bool {
	p, ok := CurrentPrincipal(ctx)
	return ok && p.Admin
}

// Actor returns the e-mail of the caller for activity records
func Actor(ctx context.Context) string {
	if p, ok := CurrentPrincipal(ctx); ok {
		return p.Email
	}
	return ""
}
