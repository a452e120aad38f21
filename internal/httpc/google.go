package httpc

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
)

// GoogleAuth selects how Google Cloud APIs are authenticated.
type GoogleAuth struct {
	APIKey   string // Used when set
	Endpoint string // Overrides the service endpoint (tests, regional endpoints)
}

// GoogleOptions returns client options for a Google Cloud API. With an API
// key the key is attached to every request made through the shared
// transport; otherwise Application Default Credentials are loaded for
// scopes and the token transport is layered on top of the shared client.
func GoogleOptions(ctx context.Context, auth GoogleAuth, scopes ...string) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if auth.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(auth.Endpoint))
	}

	if auth.APIKey != "" {
		return append(opts, option.WithHTTPClient(APIKeyClient(auth.APIKey))), nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, Client)
	ts, err := google.DefaultTokenSource(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	return append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, ts))), nil
}

// APIKeyClient returns a client that adds key as the "key" query parameter
// to every request.
func APIKeyClient(key string) *http.Client {
	return &http.Client{
		Timeout:   Client.Timeout,
		Transport: &transport.APIKey{Key: key, Transport: Client.Transport},
	}
}
