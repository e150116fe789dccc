package driven

import (
	"context"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

// AuthProvider defines the driven port for the upstream credential source.
// The engine reads the current token and username from it and subscribes to
// auth-state transitions to start and stop polling.
type AuthProvider interface {
	// Current returns the present auth state.
	Current() model.AuthState

	// Token returns the current bearer token, or "" when signed out. The
	// transport calls this per request so a token swap needs no transport
	// reconstruction.
	Token() string

	// SignIn begins an OAuth Device Flow. It returns as soon as the user
	// code is issued; polling for the grant continues in the background and
	// subscribers are notified when the session becomes authenticated.
	SignIn(ctx context.Context) (model.AuthState, error)

	// SignOut discards the stored credential and notifies subscribers.
	SignOut(ctx context.Context) error

	// Subscribe registers fn to be called on every auth-state transition.
	Subscribe(fn func(model.AuthState))
}
