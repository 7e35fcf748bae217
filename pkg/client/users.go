package client

import (
	"context"
	"net/url"
	"time"

	"roomres/pkg/model"
)

type UsersClient struct {
	httpClient *HttpClient
}

func NewUsersClient(baseURL string, timeout time.Duration) *UsersClient {
	return &UsersClient{httpClient: NewHttpClient(baseURL, timeout)}
}

// GetUser fetches the identity facts of username. It returns ErrNotFound when
// the users service does not know the user.
func (c *UsersClient) GetUser(ctx context.Context, username string) (*model.UserFacts, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/users/"+url.PathEscape(username))
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp); err != nil {
		return nil, err
	}

	var facts model.UserFacts
	if err := resp.DecodeData(&facts); err != nil {
		return nil, err
	}
	return &facts, nil
}
