package service

import (
	"math/rand/v2"

	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

// inviteCodeAlphabet is the full candidate space: 36^6 ≈ 2.2 billion codes.
const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// collisionWarnThreshold is the number of consecutive collisions after which
// allocation starts logging. Collisions stay rare until the code space is
// badly filled, so a long run signals exhaustion, not bad luck.
const collisionWarnThreshold = 10

// GenerateInviteCode draws a 6-character candidate uniformly at random from
// the uppercase-letter-and-digit alphabet. Uniqueness is not guaranteed
// here; the store's conditional insert is the only reservation point.
func GenerateInviteCode() string {
	b := make([]byte, util.InviteCodeLength)
	for i := range b {
		b[i] = inviteCodeAlphabet[rand.IntN(len(inviteCodeAlphabet))]
	}
	return string(b)
}
