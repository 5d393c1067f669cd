package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RevocationStore remembers access token ids revoked by logout until they
// would have expired anyway. Entries age out on their own.
type RevocationStore struct {
	entries *expirable.LRU[string, time.Time]
}

// NewRevocationStore keeps at most size ids, each for ttl. ttl should match
// the access token lifetime.
func NewRevocationStore(size int, ttl time.Duration) *RevocationStore {
	return &RevocationStore{entries: expirable.NewLRU[string, time.Time](size, nil, ttl)}
}

// Revoke marks jti as revoked. Tokens already past expiresAt are ignored.
func (s *RevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" || (!expiresAt.IsZero() && time.Now().After(expiresAt)) {
		return
	}
	s.entries.Add(jti, expiresAt)
}

func (s *RevocationStore) IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	_, ok := s.entries.Get(jti)
	return ok
}

func (s *RevocationStore) Count() int {
	return s.entries.Len()
}
