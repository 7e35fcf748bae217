package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"roomres/pkg/model"
)

type Metadata struct {
	TotalCount int64
	Limit      int
	Offset     int64
}

type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl, DefaultTimeout),
	}
}

// As returns a client that sends every request with the given bearer token.
func (c *BookingClient) As(token string) *BookingClient {
	return &BookingClient{httpClient: c.httpClient.WithBearer(token)}
}

func (c *BookingClient) Create(ctx context.Context, body any) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings", body)
}

func (c *BookingClient) CreateRaw(ctx context.Context, rawBody []byte) (*Response, error) {
	return c.httpClient.POSTRaw(ctx, "/api/v1/bookings", rawBody)
}

func (c *BookingClient) GetAll(ctx context.Context, limit int, offset int64) (*Response, error) {
	path := fmt.Sprintf("/api/v1/bookings?limit=%d&offset=%d", limit, offset)
	return c.httpClient.GET(ctx, path)
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(id))
}

func (c *BookingClient) ListForUser(ctx context.Context, username string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/user/"+url.PathEscape(username))
}

func (c *BookingClient) Update(ctx context.Context, id string, body any) (*Response, error) {
	return c.httpClient.PATCH(ctx, "/api/v1/bookings/id/"+url.PathEscape(id), body)
}

func (c *BookingClient) Delete(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/bookings/id/"+url.PathEscape(id))
}

func (c *BookingClient) CheckAvailability(ctx context.Context, roomID int64, date, startTime, endTime string) (*Response, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	q.Set("date", date)
	q.Set("start_time", startTime)
	q.Set("end_time", endTime)
	return c.httpClient.GET(ctx, "/api/v1/bookings/availability?"+q.Encode())
}

func (c *BookingClient) WaitForHealthy(ctx context.Context, maxWait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := c.httpClient.GET(ctx, "/health")
		if err == nil && resp.StatusCode == 200 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service did not become healthy within %v", maxWait)
		case <-ticker.C:
		}
	}
}

func (c *BookingClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	var booking model.Booking
	if err := resp.DecodeData(&booking); err != nil {
		return nil, fmt.Errorf("could not decode booking:\n%s\n%w", resp.ToString(), err)
	}
	return &booking, nil
}

func (c *BookingClient) DecodeBookings(resp *Response) ([]*model.Booking, *Metadata, error) {
	var wrapper struct {
		Data       json.RawMessage `json:"data"`
		TotalCount int64           `json:"total_count"`
		Limit      int             `json:"limit"`
		Offset     int64           `json:"offset"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, nil, fmt.Errorf("could not decode paginated resp:\n%s\n%w", resp.ToString(), err)
	}

	var bookings []*model.Booking
	if err := json.Unmarshal(wrapper.Data, &bookings); err != nil {
		return nil, nil, fmt.Errorf("could not decode booking list:\n%s\n%w", resp.ToString(), err)
	}

	metadata := &Metadata{
		TotalCount: wrapper.TotalCount,
		Limit:      wrapper.Limit,
		Offset:     wrapper.Offset,
	}

	return bookings, metadata, nil
}

func (c *BookingClient) DecodeAvailability(resp *Response) (bool, error) {
	var result struct {
		Available bool `json:"available"`
	}
	if err := resp.DecodeData(&result); err != nil {
		return false, fmt.Errorf("could not decode availability:\n%s\n%w", resp.ToString(), err)
	}
	return result.Available, nil
}
