// Package client implements the inMapper session manager: the client
// side of a token-handoff protocol that carries one authenticated
// identity across independently hosted properties with no shared
// cookie domain.
//
// A session is an opaque bearer token plus a cached user record. The
// token arrives either from OTP verification (see pkg/otp) or from a
// `token` URL parameter left by the login origin; it is persisted in a
// pluggable Store and revalidated against the Auth API.
//
// # Quick Start
//
//	auth := client.New(client.Config{
//	    APIURL:   "https://auth.example.com",
//	    LoginURL: "https://login.example.com",
//	    Store:    store, // e.g. client.NewSQLiteStore(path)
//	    Nav:      nav,   // the embedding context's navigation
//	})
//
//	user, err := auth.Protect(ctx, "dashboard")
//	if err != nil {
//	    // client already ran the auth-required or denial path
//	    return
//	}
//	fmt.Println("hello,", user.Name)
//
// # Gating semantics
//
// Protect distinguishes two failure modes that must never collapse:
// an unauthenticated caller is redirected to the login origin, while
// an authenticated caller lacking resource access gets the denial view
// and stays put. Resource-scoped checks (Protect with a resource,
// CheckAccess, HasPermission) always revalidate over the network;
// plain GetUser serves the cached user when one exists.
//
// # Failure policy
//
// A transport failure is "cannot confirm validity" and never destroys
// the session; only an explicit invalid verdict from the Auth API
// clears it. Store failures degrade to the in-memory session and are
// reported through OnAuthError. No public operation panics or returns
// a user it could not account for.
//
// # Cross-origin handoff
//
// Login sends the user to the shared login origin with a `callback`
// parameter; RedirectTo appends the current token as a `token`
// parameter when navigating to a sibling origin; construction-time
// interception consumes a `token` parameter from the current URL and
// strips it from the visible location. The `token` and `callback`
// query parameters are reserved by the protocol.
//
// # Testing
//
// Depend on the Session interface rather than *Client. The
// MemoryNavigator and MemoryStore make the protocol fully
// deterministic without a browser, and pkg/authtest provides an
// in-process Auth API.
package client
