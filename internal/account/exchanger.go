package account

import (
	"context"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// OAuthExchanger implements Exchanger against the Spotify token endpoint.
type OAuthExchanger struct {
	config *oauth2.Config
}

// NewOAuthExchanger creates an exchanger for the given app credentials.
// redirectURL must match the URI registered with Spotify; scopes are the
// permissions requested at login.
func NewOAuthExchanger(clientID, clientSecret, redirectURL string, scopes []string) *OAuthExchanger {
	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
	}
}

// AuthCodeURL returns the Spotify consent page URL carrying the state.
func (e *OAuthExchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state)
}

// Exchange swaps the authorization code for a token pair.
func (e *OAuthExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return e.config.Exchange(ctx, code)
}
