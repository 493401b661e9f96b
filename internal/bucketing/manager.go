package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// defaultWalletBuckets spreads wallets across analytics partitions.
const defaultWalletBuckets = 256

// BucketingManager assigns wallets to stable buckets. Buckets key the
// analytics partitions and Kafka message distribution; the same wallet
// always lands in the same bucket.
type BucketingManager struct {
	walletBuckets uint32
	hasherPool    sync.Pool
}

func NewBucketingManager() *BucketingManager {
	bm := &BucketingManager{
		walletBuckets: defaultWalletBuckets,
	}

	// Pool of hashers to avoid per-call allocation
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetWalletBucket returns the consistent bucket for a normalized wallet
// address (0 to walletBuckets-1).
func (bm *BucketingManager) GetWalletBucket(walletAddress string) uint32 {
	return uint32(bm.getHash(walletAddress) % uint64(bm.walletBuckets))
}

// GetDateBucket returns the UTC date partition for analytics rows.
func (bm *BucketingManager) GetDateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

// WalletBuckets returns the configured bucket count.
func (bm *BucketingManager) WalletBuckets() uint32 {
	return bm.walletBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
