package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientFactory builds gateway clients bound to a user's OAuth token.
type ClientFactory struct {
	auth *spotifyauth.Authenticator
}

// NewClientFactory creates a factory using the given authenticator.
func NewClientFactory(auth *spotifyauth.Authenticator) *ClientFactory {
	return &ClientFactory{auth: auth}
}

// ForToken returns a gateway acting as the token's user.
func (f *ClientFactory) ForToken(ctx context.Context, token *oauth2.Token) Gateway {
	httpClient := f.auth.Client(ctx, token)
	return NewClient(spotify.New(httpClient, spotify.WithRetry(true)))
}

// ForAccessToken returns a gateway acting as the user owning the access
// token. Refresh is handled by the caller; the token is used as-is.
func (f *ClientFactory) ForAccessToken(ctx context.Context, accessToken string) Gateway {
	return f.ForToken(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// NewAppClient returns a gateway authenticated with the client-credentials
// flow. It carries no user context; used for audio-feature lookups.
func NewAppClient(ctx context.Context, clientID, clientSecret string) Gateway {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := config.Client(ctx)
	return NewClient(spotify.New(httpClient, spotify.WithRetry(true)))
}
