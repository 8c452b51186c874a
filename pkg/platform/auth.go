package platform

import (
	"context"
	"fmt"
	"net/http"
)

// accessTokenRequest is the credentials body for the token exchange.
type accessTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// accessTokenResponse carries the bearer token returned by the platform.
type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Authenticate exchanges client credentials for a bearer token and installs
// it on the client for all subsequent calls.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) error {
	req := accessTokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}

	var resp accessTokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/access_token", req, &resp, "auth", "token"); err != nil {
		return err
	}

	if resp.AccessToken == "" {
		return fmt.Errorf("token exchange succeeded but response carried no access token")
	}

	c.token = resp.AccessToken
	return nil
}
