package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCache keeps search results in Valkey.
type ValkeyCache struct {
	client valkey.Client
}

var _ Cache = (*ValkeyCache)(nil)

func NewValkeyCache(addr string) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &ValkeyCache{client: client}, nil
}

func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Do(ctx,
		c.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build(),
	).Error()
}

func (c *ValkeyCache) Close() {
	c.client.Close()
}
