package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// NewBackend builds the backend for provider. apiKey is ignored by the
// offline provider and seed by the remote ones.
func NewBackend(ctx context.Context, provider, apiKey string, seed uint64) (Backend, error) {
	switch strings.ToLower(provider) {
	case ProviderAnthropic, "":
		return NewAnthropic(apiKey), nil
	case ProviderGemini:
		g, err := NewGemini(ctx, apiKey, "")
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOffline:
		return NewOffline(seed), nil
	default:
		return nil, eris.Wrapf(ErrUnknownProvider, "llm: provider %q", provider)
	}
}

// Session is the per-run handle on the generation client. The client is
// built on first use, exactly once; later calls return the same client or
// the same construction error.
type Session struct {
	build func(ctx context.Context) (*Client, error)

	once   sync.Once
	client *Client
	err    error
}

// NewSession returns a Session that constructs its client with build.
func NewSession(build func(ctx context.Context) (*Client, error)) *Session {
	return &Session{build: build}
}

// Client returns the run's client, building it on the first call.
func (s *Session) Client(ctx context.Context) (*Client, error) {
	s.once.Do(func() {
		s.client, s.err = s.build(ctx)
	})
	return s.client, s.err
}
