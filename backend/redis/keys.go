package redis

import (
	"fmt"
	"strings"
)

type keys struct {
	prefix string
}

func newKeys(prefix string) *keys {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &keys{prefix: prefix}
}

// lockKey holds the owner token of a lock, with the lease as the key's TTL.
func (k *keys) lockKey(resourceKey string) string {
	return fmt.Sprintf("%vlock:%v", k.prefix, resourceKey)
}

// jobKey is the HASH holding a scheduled job and its claim.
func (k *keys) jobKey(id string) string {
	return fmt.Sprintf("%vjob:%v", k.prefix, id)
}

// jobsByFireAt is the ZSET of unclaimed jobs. The score is the fire time in milliseconds.
func (k *keys) jobsByFireAt() string {
	return k.prefix + "jobs-by-fire-at"
}

// jobsClaimed is the ZSET of claimed jobs. The score is the claim expiry in milliseconds.
func (k *keys) jobsClaimed() string {
	return k.prefix + "jobs-claimed"
}

// instanceJobs is the SET of job ids scheduled for an instance.
func (k *keys) instanceJobs(instanceID string) string {
	return fmt.Sprintf("%vinstance-jobs:%v", k.prefix, instanceID)
}
