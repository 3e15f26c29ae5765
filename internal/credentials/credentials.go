// Package credentials resolves per-tenant platform credentials.
//
// A missing bundle is a soft condition everywhere: no active asset, a
// revoked connection, a decryption failure, or an absent required
// identifier all resolve to a nil bundle, and callers shrink their
// active platform set instead of failing.
package credentials

import "context"

// Platform names understood by the resolver.
const (
	PlatformFacebook        = "facebook"
	PlatformGoogleAnalytics = "google-analytics"
	PlatformGoogleAds       = "google-ads"
)

// Bundle holds the decrypted secrets and identifiers for one platform,
// resolved fresh per task invocation. It is never persisted and its
// field values must never reach a trace unredacted.
type Bundle struct {
	Platform string
	Fields   map[string]string
}

// Field returns a named field, or "" when absent.
func (b *Bundle) Field(name string) string {
	if b == nil {
		return ""
	}
	return b.Fields[name]
}

// Resolver looks up platform credentials for a tenant. A (nil, nil)
// return means no usable credentials; errors are reserved for
// infrastructure failures the caller may want to log, and must still be
// treated as "no bundle".
type Resolver interface {
	Resolve(ctx context.Context, customerID, campaignerID int64, platform string) (*Bundle, error)
}

// TenantContext identifies the agency and campaigner behind a task. The
// router attaches it to dispatched tasks; partial data is fine.
type TenantContext struct {
	Agency     string
	Campaigner string
}

// TenantStore resolves tenant display context for the router.
type TenantStore interface {
	TenantContext(ctx context.Context, customerID, campaignerID int64) (TenantContext, error)
}

// PlatformLister reports which platforms a customer has active assets
// for, used to default a task's platform set.
type PlatformLister interface {
	Platforms(ctx context.Context, customerID int64) ([]string, error)
}

// CanonicalPlatform normalizes the platform names users and models
// produce to the names assets are stored under.
func CanonicalPlatform(name string) string {
	switch name {
	case "google", "ga4", "google_analytics":
		return PlatformGoogleAnalytics
	case "google_ads", "adwords":
		return PlatformGoogleAds
	case "meta", "facebook_ads":
		return PlatformFacebook
	default:
		return name
	}
}

// ActivePlatforms filters requested down to the platforms a resolver
// can actually produce a bundle for. Resolution failures drop the
// platform, never error.
func ActivePlatforms(ctx context.Context, r Resolver, customerID, campaignerID int64, requested []string) []string {
	var active []string
	for _, p := range requested {
		p = CanonicalPlatform(p)
		bundle, err := r.Resolve(ctx, customerID, campaignerID, p)
		if err != nil || bundle == nil {
			continue
		}
		active = append(active, p)
	}
	return active
}
