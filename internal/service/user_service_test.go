package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coinmaksim2021-prog/auc-mob/internal/model"
	"github.com/coinmaksim2021-prog/auc-mob/internal/repository/scylla"
)

// fakeUserRepo is an in-memory stand-in for the Scylla repository. It
// enforces the same uniqueness rules with the same sentinel errors and
// counts store round trips so tests can assert on them.
type fakeUserRepo struct {
	mu            sync.Mutex
	usersByWallet map[string]*model.User
	walletByCode  map[string]string
	referrals     map[string][]model.ReferralEntry

	codeExistsCalls int
	createCalls     int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		usersByWallet: make(map[string]*model.User),
		walletByCode:  make(map[string]string),
		referrals:     make(map[string][]model.ReferralEntry),
	}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++

	if _, taken := f.walletByCode[user.InviteCode]; taken {
		return scylla.ErrInviteCodeTaken
	}
	if _, exists := f.usersByWallet[user.WalletAddress]; exists {
		return scylla.ErrWalletExists
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	f.usersByWallet[user.WalletAddress] = &stored
	f.walletByCode[user.InviteCode] = user.WalletAddress

	if user.ReferredBy != nil {
		f.referrals[*user.ReferredBy] = append(f.referrals[*user.ReferredBy], model.ReferralEntry{
			WalletAddress: user.WalletAddress,
			CreatedAt:     now,
		})
	}
	return nil
}

func (f *fakeUserRepo) GetUserByWallet(ctx context.Context, walletAddress string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.usersByWallet[walletAddress]
	if !ok {
		return nil, scylla.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUserRepo) InviteCodeExists(ctx context.Context, inviteCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.codeExistsCalls++
	_, ok := f.walletByCode[inviteCode]
	return ok, nil
}

func (f *fakeUserRepo) ListReferrals(ctx context.Context, inviteCode string, limit int) ([]model.ReferralEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.referrals[inviteCode]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.ReferralEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeUserRepo) SetTermsAccepted(ctx context.Context, walletAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.usersByWallet[walletAddress]
	if !ok {
		return scylla.ErrUserNotFound
	}
	user.TermsAccepted = true
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUserRepo) SetTwitterAccount(ctx context.Context, walletAddress, twitterUsername string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.usersByWallet[walletAddress]
	if !ok {
		return scylla.ErrUserNotFound
	}
	user.TwitterUsername = &twitterUsername
	user.TwitterVerified = true
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeUserRepo) HealthCheck(ctx context.Context) error {
	return nil
}

// collidingRepo forces invite-code conflicts on the first n CreateUser
// calls to exercise the allocation retry loop.
type collidingRepo struct {
	*fakeUserRepo
	remaining int
}

func (c *collidingRepo) CreateUser(ctx context.Context, user *model.User) error {
	c.mu.Lock()
	if c.remaining > 0 {
		c.remaining--
		c.createCalls++
		c.mu.Unlock()
		return scylla.ErrInviteCodeTaken
	}
	c.mu.Unlock()
	return c.fakeUserRepo.CreateUser(ctx, user)
}

func newTestService(repo scylla.UserRepository) *UserService {
	return NewUserService(repo, nil, nil, zap.NewNop())
}

func TestRegisterWalletNew(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	result, err := svc.RegisterWallet(context.Background(), "0xAbC123", "")
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.Equal(t, "0xabc123", result.User.WalletAddress)
	assert.Len(t, result.User.InviteCode, 6)
	assert.Nil(t, result.User.ReferredBy)
	assert.NotEmpty(t, result.User.ID)
	assert.False(t, result.User.TermsAccepted)
	assert.False(t, result.User.TwitterVerified)
}

func TestRegisterWalletIdempotent(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.RegisterWallet(ctx, "0xwallet", "")
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// A referrer whose code could have been used the second time around.
	referrer, err := svc.RegisterWallet(ctx, "0xreferrer", "")
	require.NoError(t, err)

	second, err := svc.RegisterWallet(ctx, "0xWALLET", referrer.User.InviteCode)
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.User.InviteCode, second.User.InviteCode)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Nil(t, second.User.ReferredBy, "re-registration must not attach a referral")
}

func TestRegisterWalletWithReferral(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.RegisterWallet(ctx, "0xaaa", "")
	require.NoError(t, err)

	b, err := svc.RegisterWallet(ctx, "0xbbb", a.User.InviteCode)
	require.NoError(t, err)

	require.NotNil(t, b.User.ReferredBy)
	assert.Equal(t, a.User.InviteCode, *b.User.ReferredBy)
}

func TestRegisterWalletReferralCodeNormalized(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.RegisterWallet(ctx, "0xaaa", "")
	require.NoError(t, err)

	lower := "  " + a.User.InviteCode + "  "
	b, err := svc.RegisterWallet(ctx, "0xbbb", lower)
	require.NoError(t, err)

	require.NotNil(t, b.User.ReferredBy)
	assert.Equal(t, a.User.InviteCode, *b.User.ReferredBy)
}

func TestRegisterWalletUnknownReferralIgnored(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	result, err := svc.RegisterWallet(context.Background(), "0xccc", "ZZZZZZ")
	require.NoError(t, err, "a bad referral code must never fail registration")

	assert.True(t, result.IsNew)
	assert.Nil(t, result.User.ReferredBy)
}

func TestRegisterWalletEmptyAddress(t *testing.T) {
	svc := newTestService(newFakeUserRepo())

	_, err := svc.RegisterWallet(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterWalletConcurrentDistinctWallets(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	const n = 50
	var wg sync.WaitGroup
	results := make([]*RegistrationResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RegisterWallet(context.Background(), fmt.Sprintf("0xwallet%03d", i), "")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.True(t, results[i].IsNew)
		code := results[i].User.InviteCode
		if owner, dup := seen[code]; dup {
			t.Fatalf("invite code %s allocated to both %s and %s", code, owner, results[i].User.WalletAddress)
		}
		seen[code] = results[i].User.WalletAddress
	}
}

func TestRegisterWalletConcurrentSameWallet(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*RegistrationResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RegisterWallet(context.Background(), "0xshared", "")
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "a lost duplicate-wallet race must resolve, not error")
		if results[i].IsNew {
			newCount++
		}
		assert.Equal(t, results[0].User.InviteCode, results[i].User.InviteCode)
	}
	assert.Equal(t, 1, newCount, "exactly one caller creates the record")
}

func TestRegisterWalletRetriesOnCodeCollision(t *testing.T) {
	repo := &collidingRepo{fakeUserRepo: newFakeUserRepo(), remaining: 3}
	svc := newTestService(repo)

	result, err := svc.RegisterWallet(context.Background(), "0xddd", "")
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.Equal(t, 4, repo.createCalls, "three collisions then one successful insert")
}

func TestVerifyInviteCodeFormatGuard(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)

	valid, err := svc.VerifyInviteCode(context.Background(), "AB12")
	require.NoError(t, err)

	assert.False(t, valid)
	assert.Equal(t, 0, repo.codeExistsCalls, "short codes must not touch the store")
}

func TestVerifyInviteCode(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.RegisterWallet(ctx, "0xaaa", "")
	require.NoError(t, err)

	valid, err := svc.VerifyInviteCode(ctx, a.User.InviteCode)
	require.NoError(t, err)
	assert.True(t, valid)

	// Normalization: lower-cased input must match the stored code.
	valid, err = svc.VerifyInviteCode(ctx, "  "+lowercase(a.User.InviteCode)+" ")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = svc.VerifyInviteCode(ctx, "ZZZZZ9")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestListReferrals(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.RegisterWallet(ctx, "0xreferrer", "")
	require.NoError(t, err)

	referred := []string{"0xone", "0xtwo", "0xthree"}
	for _, wallet := range referred {
		_, err := svc.RegisterWallet(ctx, wallet, a.User.InviteCode)
		require.NoError(t, err)
	}

	list, err := svc.ListReferrals(ctx, "0xREFERRER")
	require.NoError(t, err)

	assert.Equal(t, a.User.InviteCode, list.InviteCode)
	assert.Equal(t, 3, list.ReferralCount)

	seen := make(map[string]int)
	for _, entry := range list.Referrals {
		seen[entry.WalletAddress]++
	}
	for _, wallet := range referred {
		assert.Equal(t, 1, seen[wallet], "each referred wallet appears exactly once")
	}
}

func TestListReferralsCapped(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.RegisterWallet(ctx, "0xpopular", "")
	require.NoError(t, err)

	// Seed well past the cap directly in the store.
	repo.mu.Lock()
	for i := 0; i < 150; i++ {
		repo.referrals[a.User.InviteCode] = append(repo.referrals[a.User.InviteCode], model.ReferralEntry{
			WalletAddress: fmt.Sprintf("0xfan%04d", i),
			CreatedAt:     time.Now().UTC(),
		})
	}
	repo.mu.Unlock()

	list, err := svc.ListReferrals(ctx, "0xpopular")
	require.NoError(t, err)

	assert.Equal(t, 100, list.ReferralCount, "count reports the capped set, not the true total")
	assert.Len(t, list.Referrals, 100)
}

func TestListReferralsUnknownWallet(t *testing.T) {
	svc := newTestService(newFakeUserRepo())

	_, err := svc.ListReferrals(context.Background(), "0xnobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserInfo(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetUserInfo(ctx, "0xghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	created, err := svc.RegisterWallet(ctx, "0xABCdef", "")
	require.NoError(t, err)

	// Case normalization: a differently-cased query resolves to the record.
	user, err := svc.GetUserInfo(ctx, "0xabcDEF")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, user.ID)
	assert.Equal(t, "0xabcdef", user.WalletAddress)
}

func TestAcceptTerms(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	err := svc.AcceptTerms(ctx, "0xnobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, repo.usersByWallet, "a failed mutation leaves the store unchanged")

	created, err := svc.RegisterWallet(ctx, "0xeee", "")
	require.NoError(t, err)
	require.False(t, created.User.TermsAccepted)

	require.NoError(t, svc.AcceptTerms(ctx, "0xEEE"))

	user, err := svc.GetUserInfo(ctx, "0xeee")
	require.NoError(t, err)
	assert.True(t, user.TermsAccepted)
	assert.False(t, user.UpdatedAt.Before(created.User.UpdatedAt))
}

func TestConnectTwitter(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	err := svc.ConnectTwitter(ctx, "0xnobody", "someone")
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = svc.ConnectTwitter(ctx, "0xfff", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RegisterWallet(ctx, "0xfff", "")
	require.NoError(t, err)

	require.NoError(t, svc.ConnectTwitter(ctx, "0xfff", "cryptodev"))

	user, err := svc.GetUserInfo(ctx, "0xfff")
	require.NoError(t, err)
	require.NotNil(t, user.TwitterUsername)
	assert.Equal(t, "cryptodev", *user.TwitterUsername)
	assert.True(t, user.TwitterVerified, "connect is a stub that always verifies")
}

func lowercase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
