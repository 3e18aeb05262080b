package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Profile is the public profile of an external user.
type Profile struct {
	ID          int64
	Name        string
	Description string
}

// Resolver looks up users on the external identity platform.
type Resolver interface {
	// LookupUser resolves a username to its user id.
	LookupUser(ctx context.Context, username string) (int64, error)

	// FetchProfile returns the user's public profile.
	FetchProfile(ctx context.Context, userID int64) (*Profile, error)
}

// HTTPResolver talks to the platform's public users API.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the given API base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type usernameLookupRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernameLookupResponse struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

// LookupUser resolves a username via the batch username endpoint.
func (r *HTTPResolver) LookupUser(ctx context.Context, username string) (int64, error) {
	payload, err := json.Marshal(usernameLookupRequest{
		Usernames:          []string{username},
		ExcludeBannedUsers: true,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/usernames/users", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var result usernameLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(result.Data) == 0 {
		return 0, ErrUserNotFound
	}
	return result.Data[0].ID, nil
}

type profileResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FetchProfile returns the user's name and profile description.
func (r *HTTPResolver) FetchProfile(ctx context.Context, userID int64) (*Profile, error) {
	url := fmt.Sprintf("%s/v1/users/%d", r.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile returned status %d", resp.StatusCode)
	}

	var result profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return &Profile{ID: userID, Name: result.Name, Description: result.Description}, nil
}
