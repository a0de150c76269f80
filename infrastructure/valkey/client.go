package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// Config describes one Valkey connection. KeyPrefix namespaces every key this
// service writes, so multiple deployments can share a server.
type Config struct {
	Address     string
	Password    string
	DB          int
	KeyPrefix   string
	PingTimeout time.Duration // zero means 5s
}

// Client is a thin wrapper over valkey-go that owns the key namespace and the
// connection lifecycle. Create it once in cmd wiring and pass it down.
type Client struct {
	raw    valkeylib.Client
	prefix string
}

// NewClient connects and verifies the server answers a ping before returning,
// so misconfiguration fails at startup instead of on the first nonce.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	raw, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := raw.Do(ctx, raw.B().Ping().Build()).Error(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.Address, err)
	}

	return &Client{raw: raw, prefix: strings.TrimSuffix(cfg.KeyPrefix, ":")}, nil
}

// Raw exposes the underlying valkey-go client for command building.
func (c *Client) Raw() valkeylib.Client {
	return c.raw
}

func (c *Client) Close() {
	if c.raw != nil {
		c.raw.Close()
	}
}

// Key joins the parts under the client's namespace.
// Key("nonce", "user123") -> "tokengate:nonce:user123"
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return strings.Join(append([]string{c.prefix}, parts...), ":")
}

// IsConnected reports whether the server currently answers, bounded to half a
// second so health checks never hang.
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return c.raw.Do(ctx, c.raw.B().Ping().Build()).Error() == nil
}

// IsNil reports whether err is a Valkey NIL response (missing key).
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
