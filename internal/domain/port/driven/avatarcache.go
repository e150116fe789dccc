package driven

import "context"

// AvatarCache defines the driven port for the author-avatar download cache.
// It is an injected service with an explicit lifecycle, cleared on sign-out.
type AvatarCache interface {
	// Get returns the avatar bytes and content type for the given URL,
	// downloading and caching on first use.
	Get(ctx context.Context, url string) ([]byte, string, error)

	// Clear removes every cached avatar.
	Clear(ctx context.Context) error
}
