package client

import (
	"context"
	"fmt"
	"time"

	"roomres/pkg/model"
)

type RoomsClient struct {
	httpClient *HttpClient
}

func NewRoomsClient(baseURL string, timeout time.Duration) *RoomsClient {
	return &RoomsClient{httpClient: NewHttpClient(baseURL, timeout)}
}

// GetRoomStatus fetches whether a room exists and accepts bookings. It
// returns ErrNotFound for unknown rooms.
func (c *RoomsClient) GetRoomStatus(ctx context.Context, roomID int64) (*model.RoomFacts, error) {
	resp, err := c.httpClient.GET(ctx, fmt.Sprintf("/api/v1/rooms/%d/status", roomID))
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp); err != nil {
		return nil, err
	}

	var facts model.RoomFacts
	if err := resp.DecodeData(&facts); err != nil {
		return nil, err
	}
	if facts.ID == 0 {
		facts.ID = roomID
	}
	return &facts, nil
}
