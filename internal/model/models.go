package model

import "time"

// -------------------- USER MODEL --------------------

// User is the aggregate root: one record per registered wallet address.
// WalletAddress is stored lower-cased and is the unique lookup key.
// InviteCode is the user's own 6-character referral code, globally unique
// and immutable once assigned. ReferredBy holds the invite code (not the
// user id) that was used during this user's registration, nil when none.
type User struct {
	ID              string    `json:"id" db:"id"`
	WalletAddress   string    `json:"wallet_address" db:"wallet_address"`
	InviteCode      string    `json:"invite_code" db:"invite_code"`
	ReferredBy      *string   `json:"referred_by" db:"referred_by"`
	TwitterUsername *string   `json:"twitter_username" db:"twitter_username"`
	TwitterVerified bool      `json:"twitter_verified" db:"twitter_verified"`
	TermsAccepted   bool      `json:"terms_accepted" db:"terms_accepted"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ReferralEntry is the projection returned by referral listings: only the
// referred wallet and when it registered.
type ReferralEntry struct {
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RegistrationEvent is the payload published to Kafka and recorded in the
// analytics sink after a successful registration.
type RegistrationEvent struct {
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	InviteCode    string    `json:"invite_code"`
	ReferredBy    string    `json:"referred_by,omitempty"`
	WalletBucket  uint32    `json:"wallet_bucket"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ProfileEvent is published when a profile-level mutation lands
// (terms acceptance, Twitter connect).
type ProfileEvent struct {
	WalletAddress string    `json:"wallet_address"`
	Kind          string    `json:"kind"`
	OccurredAt    time.Time `json:"occurred_at"`
}
