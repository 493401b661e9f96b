package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetWalletBucketStable(t *testing.T) {
	bm := NewBucketingManager()

	first := bm.GetWalletBucket("0xabc123")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, bm.GetWalletBucket("0xabc123"))
	}
}

func TestGetWalletBucketRange(t *testing.T) {
	bm := NewBucketingManager()

	for i := 0; i < 1000; i++ {
		bucket := bm.GetWalletBucket(fmt.Sprintf("0xwallet%d", i))
		assert.Less(t, bucket, bm.WalletBuckets())
	}
}

func TestGetWalletBucketSpread(t *testing.T) {
	bm := NewBucketingManager()

	seen := make(map[uint32]struct{})
	for i := 0; i < 1000; i++ {
		seen[bm.GetWalletBucket(fmt.Sprintf("0xwallet%d", i))] = struct{}{}
	}
	// 1000 wallets over 256 buckets should hit most of them.
	assert.Greater(t, len(seen), 200)
}
