// Package cpa implements the client side of the Cross-Platform Authentication
// protocol: a device registers with an authorization provider, obtains a
// token for a service domain and presents it to that domain's services.
//
// # Modes
//
// A token is requested in one of two modes:
//
//   - client mode issues a client token right after registration, with no
//     human involved
//   - user mode obtains a device grant; a human visits the verification URI,
//     enters the user code, and the client polls the provider until the grant
//     is approved, rejected or expires
//
// # Components
//
// AuthorizationClient performs single protocol exchanges. TokenStore caches
// one token per domain on top of a SecureStore, hiding expired tokens.
// Provider ties both together: it runs at most one session per domain,
// shares its outcome with every request that joined it, and honours the
// provider's slow-down requests while polling.
//
// # Concurrency
//
// Provider methods can be called from any goroutine. Callbacks passed to
// RequestToken are invoked from the session goroutine of the domain, one at
// a time and in request order, or synchronously from RequestToken when the
// cached token satisfies the request. Blocking callers use Provider.Token.
//
// # Default provider
//
// SetDefault and Default manage an optional process-wide provider. Nothing
// in this package reads the slot; it exists for applications that want one
// shared instance.
//
//	store := securestore.NewMemoryStore()
//	p, err := cpa.New("https://cpa.example", store)
//	if err != nil {
//		return err
//	}
//	cpa.SetDefault(p)
//	token, err := cpa.Default().Token(ctx, "radio.example", true)
package cpa
