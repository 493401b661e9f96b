package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWalletAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeWalletAddress("  0xAbCdEf "))
	assert.Equal(t, "0xabcdef", NormalizeWalletAddress("0xabcdef"))
	assert.Equal(t, "", NormalizeWalletAddress("   "))
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "ABC123", NormalizeInviteCode(" abc123 "))
	assert.Equal(t, "ABC123", NormalizeInviteCode("ABC123"))
	assert.Equal(t, "", NormalizeInviteCode(""))
}

func TestIsInviteCodeFormat(t *testing.T) {
	assert.True(t, IsInviteCodeFormat("ABC123"))
	assert.True(t, IsInviteCodeFormat("ZZZZZZ"))
	assert.True(t, IsInviteCodeFormat("000000"))

	assert.False(t, IsInviteCodeFormat("ABC12"), "too short")
	assert.False(t, IsInviteCodeFormat("ABC1234"), "too long")
	assert.False(t, IsInviteCodeFormat("abc123"), "lowercase is not normalized form")
	assert.False(t, IsInviteCodeFormat("ABC-12"))
	assert.False(t, IsInviteCodeFormat(""))
}
