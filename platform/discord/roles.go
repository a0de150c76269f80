package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const httpTimeout = 10 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

// RoleClient implements platform.RoleMutator against the Discord REST API.
// Discord rate-limits these endpoints aggressively; callers isolate per-call
// failures instead of retrying here.
type RoleClient struct {
	baseURL  string
	botToken string
}

func NewRoleClient(baseURL, botToken string) *RoleClient {
	return &RoleClient{baseURL: baseURL, botToken: botToken}
}

func (c *RoleClient) GrantRole(ctx context.Context, userID, roleID, serverID string) error {
	return c.memberRoleRequest(ctx, http.MethodPut, userID, roleID, serverID)
}

func (c *RoleClient) RevokeRole(ctx context.Context, userID, roleID, serverID string) error {
	return c.memberRoleRequest(ctx, http.MethodDelete, userID, roleID, serverID)
}

func (c *RoleClient) memberRoleRequest(ctx context.Context, method, userID, roleID, serverID string) error {
	targetURL := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s",
		c.baseURL, url.PathEscape(serverID), url.PathEscape(userID), url.PathEscape(roleID))

	req, err := http.NewRequestWithContext(ctx, method, targetURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("role %s %s failed: status=%d body=%s", method, roleID, resp.StatusCode, string(b))
	}
	return nil
}
