package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
	redisrepo "github.com/coinmaksim2021-prog/auc-mob/internal/repository/redis"
	"github.com/coinmaksim2021-prog/auc-mob/internal/repository/scylla"
	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

var (
	ErrUserNotFound = errors.New("wallet not found")
	ErrInvalidInput = errors.New("invalid input")
)

// referralListCap bounds referral listings. The reported referral_count is
// the size of the capped result set, not a true total beyond the cap.
const referralListCap = 100

// Profile mutation kinds recorded on the event stream.
const (
	MutationTermsAccepted    = "terms_accepted"
	MutationTwitterConnected = "twitter_connected"
)

// UserService implements wallet registration and the referral queries.
// It is stateless between requests; uniqueness of wallet addresses and
// invite codes is enforced by the store's conditional inserts, so no
// in-process locking is needed.
type UserService struct {
	userRepo scylla.UserRepository
	cache    *redisrepo.UserCache
	events   *EventRecorder
	logger   *zap.Logger
}

// RegistrationResult reports the outcome of a register call. IsNew is true
// only when this call created the record.
type RegistrationResult struct {
	IsNew bool
	User  *model.User
}

// ReferralList is the aggregate returned for a referrer's wallet.
type ReferralList struct {
	InviteCode    string                `json:"invite_code"`
	ReferralCount int                   `json:"referral_count"`
	Referrals     []model.ReferralEntry `json:"referrals"`
}

// NewUserService creates a new user service. cache and events may be nil;
// both are optional accelerations around the store of record.
func NewUserService(
	userRepo scylla.UserRepository,
	cache *redisrepo.UserCache,
	events *EventRecorder,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		cache:    cache,
		events:   events,
		logger:   logger,
	}
}

// RegisterWallet creates a user record for a wallet address, or returns the
// existing one untouched. Registration is create-or-fetch, never an upsert:
// a second call with a different referral code changes nothing. An unknown
// or malformed referral code is silently dropped; registration never fails
// because of it.
func (s *UserService) RegisterWallet(ctx context.Context, walletAddress, inviteCode string) (*RegistrationResult, error) {
	startTime := time.Now()

	wallet := util.NormalizeWalletAddress(walletAddress)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}

	existing, err := s.userRepo.GetUserByWallet(ctx, wallet)
	if err == nil {
		return &RegistrationResult{IsNew: false, User: existing}, nil
	}
	if !errors.Is(err, scylla.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing wallet: %w", err)
	}

	referredBy, err := s.resolveReferral(ctx, inviteCode)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.allocateAndPersist(ctx, wallet, referredBy)
	if err != nil {
		return nil, err
	}

	if isNew {
		if s.cache != nil {
			s.cache.SetUser(ctx, user)
		}
		s.events.RecordRegistration(user)

		s.logger.Info("Wallet registered",
			util.String("wallet_address", wallet),
			util.String("invite_code", user.InviteCode),
			util.Bool("referred", referredBy != nil),
			util.Duration("duration", time.Since(startTime)),
		)
	}

	return &RegistrationResult{IsNew: isNew, User: user}, nil
}

// resolveReferral normalizes a supplied referral code and resolves it
// against the store. A code that does not match any record resolves to nil,
// never to an error; only a store failure propagates.
func (s *UserService) resolveReferral(ctx context.Context, rawCode string) (*string, error) {
	code := util.NormalizeInviteCode(rawCode)
	if code == "" {
		return nil, nil
	}

	if s.cache != nil && s.cache.InviteCodeKnown(ctx, code) {
		return &code, nil
	}

	exists, err := s.userRepo.InviteCodeExists(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	if !exists {
		s.logger.Debug("Ignoring unknown referral code",
			util.String("invite_code", code))
		return nil, nil
	}

	if s.cache != nil {
		s.cache.MarkInviteCodeKnown(ctx, code)
	}
	return &code, nil
}

// allocateAndPersist draws invite-code candidates until one survives the
// store's conditional insert. There is no retry cap: the collision
// probability shrinks with every draw unless the code space is nearly
// exhausted, which the warn log surfaces. A duplicate-wallet race resolves
// by re-fetching the winner's record.
func (s *UserService) allocateAndPersist(ctx context.Context, wallet string, referredBy *string) (*model.User, bool, error) {
	collisions := 0

	for {
		code := GenerateInviteCode()

		// Cheap existence pre-check; the conditional insert below is the
		// actual reservation.
		exists, err := s.userRepo.InviteCodeExists(ctx, code)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check invite code: %w", err)
		}
		if exists {
			collisions++
			s.noteCollision(code, collisions)
			continue
		}

		user := &model.User{
			WalletAddress: wallet,
			InviteCode:    code,
			ReferredBy:    referredBy,
		}

		err = s.userRepo.CreateUser(ctx, user)
		switch {
		case err == nil:
			return user, true, nil

		case errors.Is(err, scylla.ErrInviteCodeTaken):
			// Lost the reservation race; regenerate and retry.
			collisions++
			s.noteCollision(code, collisions)

		case errors.Is(err, scylla.ErrWalletExists):
			// Lost the duplicate-wallet race; the winner's record is the
			// answer.
			existing, ferr := s.userRepo.GetUserByWallet(ctx, wallet)
			if ferr != nil {
				return nil, false, fmt.Errorf("failed to fetch concurrently registered wallet: %w", ferr)
			}
			return existing, false, nil

		default:
			return nil, false, fmt.Errorf("failed to persist user: %w", err)
		}
	}
}

func (s *UserService) noteCollision(code string, collisions int) {
	if collisions >= collisionWarnThreshold {
		s.logger.Warn("Invite code allocation under collision pressure",
			util.String("candidate", code),
			util.Int("consecutive_collisions", collisions),
		)
	}
}

// GetUserInfo is a pure lookup by wallet address.
func (s *UserService) GetUserInfo(ctx context.Context, walletAddress string) (*model.User, error) {
	wallet := util.NormalizeWalletAddress(walletAddress)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}

	return s.getUser(ctx, wallet)
}

// VerifyInviteCode reports whether a code belongs to a registered user.
// Anything that is not 6 characters after normalization is rejected without
// touching the store.
func (s *UserService) VerifyInviteCode(ctx context.Context, rawCode string) (bool, error) {
	code := util.NormalizeInviteCode(rawCode)
	if len(code) != util.InviteCodeLength {
		return false, nil
	}

	if s.cache != nil && s.cache.InviteCodeKnown(ctx, code) {
		return true, nil
	}

	exists, err := s.userRepo.InviteCodeExists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to verify invite code: %w", err)
	}

	if exists && s.cache != nil {
		s.cache.MarkInviteCodeKnown(ctx, code)
	}
	return exists, nil
}

// ListReferrals returns the wallets registered with this user's invite
// code, capped at 100 entries. Ordering is whatever the store returns.
func (s *UserService) ListReferrals(ctx context.Context, walletAddress string) (*ReferralList, error) {
	wallet := util.NormalizeWalletAddress(walletAddress)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}

	owner, err := s.getUser(ctx, wallet)
	if err != nil {
		return nil, err
	}

	referrals, err := s.userRepo.ListReferrals(ctx, owner.InviteCode, referralListCap)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	return &ReferralList{
		InviteCode:    owner.InviteCode,
		ReferralCount: len(referrals),
		Referrals:     referrals,
	}, nil
}

// AcceptTerms flips terms_accepted for a registered wallet.
func (s *UserService) AcceptTerms(ctx context.Context, walletAddress string) error {
	wallet := util.NormalizeWalletAddress(walletAddress)
	if wallet == "" {
		return fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}

	if err := s.userRepo.SetTermsAccepted(ctx, wallet); err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to accept terms: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUser(ctx, wallet)
	}
	s.events.RecordProfileMutation(wallet, MutationTermsAccepted)

	return nil
}

// ConnectTwitter stores the Twitter username for a registered wallet and
// marks it verified. No actual verification happens; this mirrors the
// platform's current stub behavior.
func (s *UserService) ConnectTwitter(ctx context.Context, walletAddress, twitterUsername string) error {
	wallet := util.NormalizeWalletAddress(walletAddress)
	if wallet == "" {
		return fmt.Errorf("%w: wallet address is required", ErrInvalidInput)
	}
	if twitterUsername == "" {
		return fmt.Errorf("%w: twitter username is required", ErrInvalidInput)
	}

	if err := s.userRepo.SetTwitterAccount(ctx, wallet, twitterUsername); err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to connect twitter: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateUser(ctx, wallet)
	}
	s.events.RecordProfileMutation(wallet, MutationTwitterConnected)

	return nil
}

// getUser reads through the cache to the store; walletAddress must already
// be normalized.
func (s *UserService) getUser(ctx context.Context, wallet string) (*model.User, error) {
	if s.cache != nil {
		if cached := s.cache.GetUser(ctx, wallet); cached != nil {
			return cached, nil
		}
	}

	user, err := s.userRepo.GetUserByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if s.cache != nil {
		s.cache.SetUser(ctx, user)
	}
	return user, nil
}
