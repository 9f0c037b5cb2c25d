// internal/chatclient/rest.go

package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taskroom/taskroom-backend/internal/chat"
)

// RestClient fetches durable chat state over the HTTP API. Live events
// arrive over the websocket; history, rosters and group membership come
// from here.
type RestClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewRestClient(baseURL, token string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *RestClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat api request: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode chat api response: %w", err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("chat api: %s", msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode chat api data: %w", err)
		}
	}
	return nil
}

// PrivateHistory fetches the message history with another user, ascending.
func (c *RestClient) PrivateHistory(ctx context.Context, otherUserID int64, limit int) ([]*chat.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var messages []*chat.Message
	path := fmt.Sprintf("/api/v1/chat/messages/private/%d", otherUserID)
	if err := c.get(ctx, path, query, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GroupHistory fetches a group's message history, ascending.
func (c *RestClient) GroupHistory(ctx context.Context, groupID int64, limit int) ([]*chat.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var messages []*chat.Message
	path := fmt.Sprintf("/api/v1/chat/messages/group/%d", groupID)
	if err := c.get(ctx, path, query, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MyGroups fetches the groups the authenticated user belongs to.
func (c *RestClient) MyGroups(ctx context.Context) ([]*chat.Group, error) {
	var groups []*chat.Group
	if err := c.get(ctx, "/api/v1/chat/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Contacts fetches the roster of users the authenticated user has
// conversed with.
func (c *RestClient) Contacts(ctx context.Context) ([]*chat.UserInfo, error) {
	var contacts []*chat.UserInfo
	if err := c.get(ctx, "/api/v1/chat/contacts", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// OnlineStatus fetches presence for the authenticated user's contacts.
func (c *RestClient) OnlineStatus(ctx context.Context) (map[int64]bool, error) {
	var status map[int64]bool
	if err := c.get(ctx, "/api/v1/chat/online-status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}
