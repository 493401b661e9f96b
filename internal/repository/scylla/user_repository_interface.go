package scylla

import (
	"context"
	"errors"

	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
)

// Store-level outcomes. The conflict sentinels are recovered inside the
// service (re-fetch or regenerate) and never reach an API response.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrWalletExists    = errors.New("wallet address already registered")
	ErrInviteCodeTaken = errors.New("invite code already taken")
)

// UserRepository defines the store operations the service depends on.
// CreateUser must enforce uniqueness of both wallet_address and invite_code
// atomically at the store level and report violations with the sentinels
// above.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByWallet(ctx context.Context, walletAddress string) (*model.User, error)
	InviteCodeExists(ctx context.Context, inviteCode string) (bool, error)
	ListReferrals(ctx context.Context, inviteCode string, limit int) ([]model.ReferralEntry, error)
	SetTermsAccepted(ctx context.Context, walletAddress string) error
	SetTwitterAccount(ctx context.Context, walletAddress, twitterUsername string) error
	HealthCheck(ctx context.Context) error
}
