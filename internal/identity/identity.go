// Package identity resolves transport credentials into chat identities.
// Credential issuance belongs to the surrounding league application; this
// package only verifies what it is handed. A failed resolution is not an
// error condition for the transport layer — connections without a valid
// credential are treated as anonymous observers.
package identity

import "context"

// Identity describes an authenticated account as seen by the chat engine.
type Identity struct {
	AccountID int64
	Nickname  string
	Team      string
	Moderator bool
}

// Resolver turns a transport credential (bearer token, query parameter)
// into an Identity. Implementations return nil with a nil error when the
// credential is missing, malformed, or expired — callers downgrade such
// connections to anonymous rather than failing them.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// StaticResolver maps fixed tokens to identities. It is used in tests and
// local development where no token issuer is running.
type StaticResolver map[string]Identity

// Resolve looks the credential up in the static map.
func (r StaticResolver) Resolve(_ context.Context, credential string) (*Identity, error) {
	id, ok := r[credential]
	if !ok {
		return nil, nil
	}
	return &id, nil
}
