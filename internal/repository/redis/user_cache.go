package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/client"
	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

const (
	userByWalletPrefix = "user_wallet:"
	inviteCodePrefix   = "invite_code:"
)

// UserCache is a read-through cache over the persistent store. User records
// are cached by normalized wallet address with a short TTL. Invite-code
// existence is cached positively only: codes are never revoked, so a
// cached hit can never go stale, while a miss must always fall through to
// the store.
type UserCache struct {
	client  *client.RedisClient
	userTTL time.Duration
	codeTTL time.Duration
}

func NewUserCache(client *client.RedisClient, userTTL, codeTTL time.Duration) *UserCache {
	return &UserCache{
		client:  client,
		userTTL: userTTL,
		codeTTL: codeTTL,
	}
}

// GetUser returns the cached record for a wallet, or nil on a miss.
func (c *UserCache) GetUser(ctx context.Context, walletAddress string) *model.User {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, userByWalletPrefix+walletAddress)
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			util.Warn("User cache read failed",
				zap.String("wallet_address", walletAddress),
				zap.Error(err))
		}
		return nil
	}

	user := &model.User{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		util.Warn("User cache entry corrupt, dropping",
			zap.String("wallet_address", walletAddress),
			zap.Error(err))
		_ = c.client.Del(ctx, userByWalletPrefix+walletAddress)
		return nil
	}

	return user
}

// SetUser caches a record under its wallet address.
func (c *UserCache) SetUser(ctx context.Context, user *model.User) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := json.Marshal(user)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, userByWalletPrefix+user.WalletAddress, raw, c.userTTL); err != nil {
		util.Warn("User cache write failed",
			zap.String("wallet_address", user.WalletAddress),
			zap.Error(err))
	}
}

// InvalidateUser drops the cached record after a mutation.
func (c *UserCache) InvalidateUser(ctx context.Context, walletAddress string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, userByWalletPrefix+walletAddress); err != nil {
		util.Warn("User cache invalidation failed",
			zap.String("wallet_address", walletAddress),
			zap.Error(err))
	}
}

// InviteCodeKnown reports whether a code is positively cached as existing.
func (c *UserCache) InviteCodeKnown(ctx context.Context, inviteCode string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, inviteCodePrefix+inviteCode)
	if err != nil {
		util.Warn("Invite code cache read failed",
			zap.String("invite_code", inviteCode),
			zap.Error(err))
		return false
	}
	return exists
}

// MarkInviteCodeKnown records a positive existence check.
func (c *UserCache) MarkInviteCodeKnown(ctx context.Context, inviteCode string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, inviteCodePrefix+inviteCode, "1", c.codeTTL); err != nil {
		util.Warn("Invite code cache write failed",
			zap.String("invite_code", inviteCode),
			zap.Error(err))
	}
}

// HealthCheck verifies the underlying Redis connection.
func (c *UserCache) HealthCheck(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return c.client.HealthCheck(ctx)
}
