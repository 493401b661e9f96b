package util

import "strings"

// InviteCodeLength is the fixed length of every invite code.
const InviteCodeLength = 6

// NormalizeWalletAddress produces the canonical storage and lookup form of a
// wallet address: trimmed and lower-cased. Registration, queries, and
// mutations all key on this form.
func NormalizeWalletAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeInviteCode produces the canonical form of an invite code:
// trimmed and upper-cased. Codes are stored and compared in this form only.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsInviteCodeFormat reports whether a normalized code has the expected
// 6-character A-Z0-9 shape. Used as a cheap guard before hitting the store.
func IsInviteCodeFormat(code string) bool {
	if len(code) != InviteCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
