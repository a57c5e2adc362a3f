// Package cache is a content-addressed store of prior AI responses keyed by
// operation plus semantic fingerprint. Entries are advisory: a miss is never
// an error and duplicate producers may race to put, last writer wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/domain"
	"cognical/internal/repo"
)

// Cacheable operations.
const (
	OpParse     = "parse"
	OpRecommend = "recommend"
	OpSchedule  = "schedule"
)

const DefaultTTL = 24 * time.Hour

type Service struct {
	Repo repo.Repo
	TTL  time.Duration
	Now  func() time.Time
}

func New(r repo.Repo, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{Repo: r, TTL: ttl, Now: time.Now}
}

func ValidOperation(op string) bool {
	return op == OpParse || op == OpRecommend || op == OpSchedule
}

// SemanticHash fingerprints the meaning-bearing portion of a request:
// the lowercased trimmed input plus metadata serialized with sorted keys.
func SemanticHash(input string, metadata map[string]any) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	h := sha256.New()
	h.Write([]byte(normalized))
	if len(metadata) > 0 {
		h.Write(canonicalJSON(metadata))
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// CacheKey addresses an entry by operation and semantic fingerprint.
func CacheKey(operation, semanticHash string) string {
	sum := sha256.Sum256([]byte(operation + ":" + semanticHash))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// canonicalJSON renders a map with lexicographically sorted keys so that
// logically equal metadata always hashes the same.
func canonicalJSON(m map[string]any) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		b.Write(kj)
		b.WriteByte(':')
		vj, _ := json.Marshal(m[k])
		b.Write(vj)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// Get returns the live entry for (operation, semanticHash) and bumps its hit
// counter. An expired or absent entry returns (nil, nil).
func (s *Service) Get(ctx context.Context, operation, semanticHash string) (*domain.CacheEntry, error) {
	if !ValidOperation(operation) {
		return nil, apperr.Validationf("unknown cache operation %q", operation)
	}
	now := s.Now().UTC().Format(time.RFC3339)
	e, err := s.Repo.GetCacheEntryLive(ctx, CacheKey(operation, semanticHash), now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.FromDB("cache get", err)
	}
	return &e, nil
}

type PutOptions struct {
	MetadataJSON string
	// Rewarm carries the previous hit counter across the replacement.
	Rewarm bool
}

func (s *Service) Put(ctx context.Context, operation, semanticHash, rawInput, responseJSON string, opts PutOptions) error {
	if !ValidOperation(operation) {
		return apperr.Validationf("unknown cache operation %q", operation)
	}
	now := s.Now().UTC()
	e := domain.CacheEntry{
		CacheKey:     CacheKey(operation, semanticHash),
		Operation:    operation,
		SemanticHash: semanticHash,
		RawInput:     rawInput,
		ResponseJSON: responseJSON,
		CreatedAt:    now.Format(time.RFC3339),
		ExpiresAt:    now.Add(s.TTL).Format(time.RFC3339),
		MetadataJSON: opts.MetadataJSON,
	}
	if err := s.Repo.UpsertCacheEntry(ctx, e, opts.Rewarm); err != nil {
		return apperr.FromDB("cache put", err)
	}
	return nil
}

// PurgeExpired removes entries whose expiry has passed and reports the count.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.Now().UTC().Format(time.RFC3339)
	n, err := s.Repo.DeleteExpiredCacheEntries(ctx, now)
	if err != nil {
		return 0, apperr.FromDB("cache purge", err)
	}
	return n, nil
}
