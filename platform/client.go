// Package platform is a client for the social platform's public web APIs.
//
// Every response body is checked by an explicit Parse* validator before it
// is returned, so callers only ever see normalized values. Non-2xx responses
// are returned as [*APIError]; shape mismatches as [*ValidationError].
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const (
	DefaultUsersHost      = "https://users.roblox.com"
	DefaultThumbnailsHost = "https://thumbnails.roblox.com"
	DefaultFriendsHost    = "https://friends.roblox.com"
	DefaultTimeout        = 10 * time.Second
)

// Responses larger than this are rejected rather than buffered.
const maxResponseBytes = 2 * 1024 * 1024

type Config struct {
	UsersHost      string
	ThumbnailsHost string
	FriendsHost    string

	// HTTP client used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Upper bound on each individual upstream call. Zero means DefaultTimeout.
	Timeout time.Duration

	// Requests per second across all hosts. Zero disables pacing.
	RateLimit float64

	UserAgent string
}

type Client struct {
	usersHost      string
	thumbnailsHost string
	friendsHost    string
	client         *http.Client
	timeout        time.Duration
	limiter        *rate.Limiter
	userAgent      string
}

func NewClient(config Config) *Client {
	c := Client{
		usersHost:      config.UsersHost,
		thumbnailsHost: config.ThumbnailsHost,
		friendsHost:    config.FriendsHost,
		client:         config.HTTPClient,
		timeout:        config.Timeout,
		userAgent:      config.UserAgent,
	}
	if c.usersHost == "" {
		c.usersHost = DefaultUsersHost
	}
	if c.thumbnailsHost == "" {
		c.thumbnailsHost = DefaultThumbnailsHost
	}
	if c.friendsHost == "" {
		c.friendsHost = DefaultFriendsHost
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = "rolodex/" + versioninfo.Short()
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &c
}

// GetUser fetches and validates the core profile of a user.
func (c *Client) GetUser(ctx context.Context, userID string) (*Profile, error) {
	body, err := c.do(ctx, "user", http.MethodGet, c.usersHost+"/v1/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	return ParseProfile(body)
}

// GetAvatarURL returns the headshot thumbnail URL for a user.
func (c *Client) GetAvatarURL(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("userIds", userID)
	params.Set("size", "150x150")
	params.Set("format", "Png")
	params.Set("isCircular", "false")
	body, err := c.do(ctx, "avatar", http.MethodGet, c.thumbnailsHost+"/v1/users/avatar-headshot?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	return ParseAvatar(body)
}

func (c *Client) GetUsernameHistory(ctx context.Context, userID string) ([]string, error) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("sortOrder", "Desc")
	u := c.usersHost + "/v1/users/" + url.PathEscape(userID) + "/username-history?" + params.Encode()
	body, err := c.do(ctx, "username_history", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return ParseUsernameHistory(body)
}

// LookupUsernames resolves exact usernames to users. Banned users are included.
func (c *Client) LookupUsernames(ctx context.Context, usernames []string) ([]UsernameMatch, error) {
	req := struct {
		Usernames          []string `json:"usernames"`
		ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
	}{
		Usernames:          usernames,
		ExcludeBannedUsers: false,
	}
	body, err := c.do(ctx, "username_lookup", http.MethodPost, c.usersHost+"/v1/usernames/users", req)
	if err != nil {
		return nil, err
	}
	return ParseUsernameLookup(body)
}

// GetCount fetches one of the social counters of a user.
func (c *Client) GetCount(ctx context.Context, userID string, rel Relation) (int64, error) {
	switch rel {
	case RelationFriends, RelationFollowers, RelationFollowings:
	default:
		return 0, fmt.Errorf("unknown relation: %q", rel)
	}
	u := c.friendsHost + "/v1/users/" + url.PathEscape(userID) + "/" + string(rel) + "/count"
	body, err := c.do(ctx, string(rel)+"_count", http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	return ParseCount(body)
}

func (c *Client) GetStatus(ctx context.Context, userID string) (*Status, error) {
	body, err := c.do(ctx, "status", http.MethodGet, c.usersHost+"/v1/users/"+url.PathEscape(userID)+"/status", nil)
	if err != nil {
		return nil, err
	}
	return ParseStatus(body)
}

// do performs one request and returns the raw body of a 2xx response. The
// endpoint name only labels metrics.
func (c *Client) do(ctx context.Context, endpoint, method, u string, reqBody any) ([]byte, error) {
	start := time.Now()
	status := "error"
	defer func() {
		upstreamRequests.WithLabelValues(endpoint, status).Inc()
		upstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("platform rate limit: %w", err)
		}
	}

	var rdr io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading platform %s response: %w", endpoint, err)
	}

	if !(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		var eb ErrorBody
		if err := json.Unmarshal(body, &eb); err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode}
		}
		return nil, eb.APIError(resp.StatusCode)
	}
	return body, nil
}
