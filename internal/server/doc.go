// Package server exposes the gallery backend over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// method patterns on an [http.ServeMux]; [Middleware] wraps handlers in reverse order (last added
// executes first).
//
// Provided middleware: [Logging] (request IDs and access logs), [Recover], [Timeout] and the per-IP
// [RateLimiter].
//
// # API
//
// [API] is a thin adapter over manager.Manager:
//
//	GET    /api/providers           list instances (account=false skips account lookups)
//	POST   /api/providers           connect an app key and secret, returns where to authorize
//	DELETE /api/providers           remove an instance, renumbering later ones
//	GET    /api/providers/storage   quota of one instance
//	GET    /api/thumbnails          a page of the gallery with inlined thumbnails
//	POST   /api/refresh             relist every instance
//	GET    /oauth/authorize         redirect to the provider's consent page
//	GET    /oauth/callback          finish an authorization
//	POST   /oauth/refresh           force a token refresh
//
// Failures are JSON [ErrorResponse] bodies; sentinel errors map to status codes in statusFor.
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves a single callback for command-line authorization. A temporary server listens
// on the redirect URI, completes the authorization and reports the result through a channel. It only
// processes one callback.
package server
