// Package identity resolves an incoming connection to a stable participant
// identity: a verified user id, a client-persisted guest id, or (failing
// both) the bare connection handle. It is the three-way sum type described
// by the engine's identity model — dispatch on Kind rather than null-check.
package identity

import (
	"context"

	"github.com/chess-room-engine/backend/internal/v1/auth"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"go.uber.org/zap"
)

// Kind distinguishes the three ways an identity can be produced.
type Kind int

const (
	// Authenticated identities come from a verified bearer token.
	Authenticated Kind = iota
	// Guest identities come from a client-persisted opaque id.
	Guest
	// Connection identities are the bare transport handle; they do not
	// survive reconnect.
	Connection
)

// Identity is the resolved, stable identifier injected into every
// subsequent request from a connection.
type Identity struct {
	Kind Kind
	// ID is the stable identifier: the verified user id, "guest:<id>", or
	// the connection handle, depending on Kind.
	ID          string
	DisplayName string
}

// Survives reports whether this identity can be looked up again after a
// reconnect (authenticated and guest identities can; bare connections
// cannot).
func (i Identity) Survives() bool {
	return i.Kind == Authenticated || i.Kind == Guest
}

// TokenValidator is the subset of auth.Validator this package depends on.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

const maxGuestIDLength = 64

// Resolve implements the resolution order from the engine's identity model:
// a validating token wins, then a client-supplied guest id, then the bare
// connection handle. A token that fails validation is never fatal to the
// connection — it demotes to the guest or connection path.
func Resolve(ctx context.Context, validator TokenValidator, token, guestID, connectionID string) Identity {
	if token != "" && validator != nil {
		claims, err := validator.ValidateToken(token)
		if err == nil {
			name := claims.Name
			if name == "" {
				name = claims.Subject
			}
			return Identity{Kind: Authenticated, ID: claims.Subject, DisplayName: name}
		}
		logging.Warn(ctx, "token failed validation, demoting to guest/connection identity", zap.Error(err))
	}

	if guestID != "" && len(guestID) <= maxGuestIDLength {
		return Identity{Kind: Guest, ID: "guest:" + guestID}
	}

	return Identity{Kind: Connection, ID: connectionID}
}
