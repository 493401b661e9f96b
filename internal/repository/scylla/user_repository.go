package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
)

// Tables:
//
//	users_by_wallet   the user record, partitioned by wallet_address
//	users_by_code     invite_code -> wallet_address; the code uniqueness
//	                  ledger and the verify lookup
//	referrals_by_code materialized referral listing, partitioned by the
//	                  referrer's code
const (
	insertCodeCQL = `INSERT INTO users_by_code (invite_code, wallet_address, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`

	insertUserCQL = `INSERT INTO users_by_wallet (
		wallet_address, id, invite_code, referred_by, twitter_username,
		twitter_verified, terms_accepted, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	releaseCodeCQL = `DELETE FROM users_by_code WHERE invite_code = ?`

	insertReferralCQL = `INSERT INTO referrals_by_code (referred_by, wallet_address, created_at)
		VALUES (?, ?, ?)`

	selectUserCQL = `SELECT id, wallet_address, invite_code, referred_by, twitter_username,
		twitter_verified, terms_accepted, created_at, updated_at
		FROM users_by_wallet WHERE wallet_address = ?`

	selectCodeCQL = `SELECT wallet_address FROM users_by_code WHERE invite_code = ?`

	selectReferralsCQL = `SELECT wallet_address, created_at FROM referrals_by_code
		WHERE referred_by = ? LIMIT ?`

	updateTermsCQL = `UPDATE users_by_wallet SET terms_accepted = true, updated_at = ?
		WHERE wallet_address = ? IF EXISTS`

	updateTwitterCQL = `UPDATE users_by_wallet SET twitter_username = ?, twitter_verified = true,
		updated_at = ? WHERE wallet_address = ? IF EXISTS`
)

type userRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

var _ UserRepository = (*userRepository)(nil)

func NewUserRepository(client *ScyllaClient, logger *zap.Logger) UserRepository {
	return &userRepository{
		client: client,
		logger: logger,
	}
}

// CreateUser persists a new user record. The invite code is reserved first
// with a conditional insert; it is the global uniqueness ledger, so a lost
// race there surfaces as ErrInviteCodeTaken and the caller regenerates.
// A lost race on the wallet row releases the code reservation and surfaces
// as ErrWalletExists so the caller can re-fetch the winner's record.
func (r *userRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	applied, err := r.applyCAS(ctx, insertCodeCQL, user.InviteCode, user.WalletAddress, now)
	if err != nil {
		return fmt.Errorf("failed to reserve invite code: %w", err)
	}
	if !applied {
		return ErrInviteCodeTaken
	}

	applied, err = r.applyCAS(ctx, insertUserCQL,
		user.WalletAddress, user.ID, user.InviteCode, deref(user.ReferredBy),
		deref(user.TwitterUsername), user.TwitterVerified, user.TermsAccepted,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		r.releaseCode(ctx, user.InviteCode)
		return fmt.Errorf("failed to create user: %w", err)
	}
	if !applied {
		r.releaseCode(ctx, user.InviteCode)
		return ErrWalletExists
	}

	if user.ReferredBy != nil {
		q := r.client.Query(insertReferralCQL, *user.ReferredBy, user.WalletAddress, user.CreatedAt).WithContext(ctx)
		if err := r.client.ExecuteWithRetry(q, 2); err != nil {
			// The durable link lives on the user row; the listing row can
			// be backfilled, so the registration still stands.
			r.logger.Error("Failed to materialize referral listing row",
				zap.String("wallet_address", user.WalletAddress),
				zap.String("referred_by", *user.ReferredBy),
				zap.Error(err))
		}
	}

	r.logger.Info("User created",
		zap.String("wallet_address", user.WalletAddress),
		zap.String("user_id", user.ID),
		zap.String("invite_code", user.InviteCode))

	return nil
}

func (r *userRepository) GetUserByWallet(ctx context.Context, walletAddress string) (*model.User, error) {
	user := &model.User{}
	var referredBy, twitterUsername string

	err := r.client.Query(selectUserCQL, walletAddress).WithContext(ctx).Scan(
		&user.ID, &user.WalletAddress, &user.InviteCode, &referredBy,
		&twitterUsername, &user.TwitterVerified, &user.TermsAccepted,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Failed to get user by wallet",
			zap.String("wallet_address", walletAddress),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by wallet: %w", err)
	}

	user.ReferredBy = optional(referredBy)
	user.TwitterUsername = optional(twitterUsername)

	return user, nil
}

func (r *userRepository) InviteCodeExists(ctx context.Context, inviteCode string) (bool, error) {
	var walletAddress string
	err := r.client.Query(selectCodeCQL, inviteCode).WithContext(ctx).Scan(&walletAddress)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check invite code: %w", err)
	}
	return true, nil
}

func (r *userRepository) ListReferrals(ctx context.Context, inviteCode string, limit int) ([]model.ReferralEntry, error) {
	iter := r.client.Query(selectReferralsCQL, inviteCode, limit).WithContext(ctx).Iter()

	referrals := make([]model.ReferralEntry, 0)
	var entry model.ReferralEntry
	for iter.Scan(&entry.WalletAddress, &entry.CreatedAt) {
		referrals = append(referrals, entry)
	}
	if err := iter.Close(); err != nil {
		r.logger.Error("Failed to list referrals",
			zap.String("invite_code", inviteCode),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	return referrals, nil
}

func (r *userRepository) SetTermsAccepted(ctx context.Context, walletAddress string) error {
	now := time.Now().UTC()

	applied, err := r.applyCAS(ctx, updateTermsCQL, now, walletAddress)
	if err != nil {
		return fmt.Errorf("failed to accept terms: %w", err)
	}
	if !applied {
		return ErrUserNotFound
	}

	r.logger.Info("Terms accepted", zap.String("wallet_address", walletAddress))
	return nil
}

func (r *userRepository) SetTwitterAccount(ctx context.Context, walletAddress, twitterUsername string) error {
	now := time.Now().UTC()

	applied, err := r.applyCAS(ctx, updateTwitterCQL, twitterUsername, now, walletAddress)
	if err != nil {
		return fmt.Errorf("failed to connect twitter account: %w", err)
	}
	if !applied {
		return ErrUserNotFound
	}

	r.logger.Info("Twitter account connected",
		zap.String("wallet_address", walletAddress),
		zap.String("twitter_username", twitterUsername))
	return nil
}

func (r *userRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}

// applyCAS runs a lightweight transaction and reports whether it applied.
func (r *userRepository) applyCAS(ctx context.Context, stmt string, values ...interface{}) (bool, error) {
	previous := map[string]interface{}{}
	return r.client.Query(stmt, values...).WithContext(ctx).MapScanCAS(previous)
}

func (r *userRepository) releaseCode(ctx context.Context, inviteCode string) {
	q := r.client.Query(releaseCodeCQL, inviteCode).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(q, 2); err != nil {
		r.logger.Error("Failed to release invite code reservation",
			zap.String("invite_code", inviteCode),
			zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	v := s
	return &v
}
