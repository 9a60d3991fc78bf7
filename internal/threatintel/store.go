package threatintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by a Store that holds no KEV snapshot yet.
var ErrNoSnapshot = errors.New("no kev snapshot")

// Snapshot is the persisted form of the KEV set.
type Snapshot struct {
	CVEs      []string  `json:"cves"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSnapshot stores the upper-cased, sorted members of set.
func NewSnapshot(set map[string]struct{}, expires time.Time) Snapshot {
	cves := make([]string, 0, len(set))
	for c := range set {
		cves = append(cves, strings.ToUpper(c))
	}
	sort.Strings(cves)
	return Snapshot{CVEs: cves, ExpiresAt: expires.UTC()}
}

// Set returns the snapshot as an upper-cased lookup set.
func (s Snapshot) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(s.CVEs))
	for _, c := range s.CVEs {
		out[strings.ToUpper(c)] = struct{}{}
	}
	return out
}

// Store persists KEV snapshots between runs.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// FileStore keeps the snapshot in a JSON file.
type FileStore struct {
	Path string
}

// CacheFileName is the snapshot file name inside the cache directory.
const CacheFileName = "cisa_kev.json"

// NewFileStore returns a store at <cacheDir>/cisa_kev.json.
func NewFileStore(cacheDir string) *FileStore {
	return &FileStore{Path: filepath.Join(cacheDir, CacheFileName)}
}

func (f *FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding %s: %w", f.Path, err)
	}
	return s, nil
}

func (f *FileStore) Save(_ context.Context, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

// RedisKey is where RedisStore keeps the snapshot.
const RedisKey = "sbomtm:cisa_kev"

// RedisStore shares the snapshot between processes through Redis.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, key: RedisKey}
}

func (r *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding %s: %w", r.key, err)
	}
	return s, nil
}

// Save keeps the value without a Redis TTL; offline runs still read
// expired snapshots.
func (r *RedisStore) Save(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, data, 0).Err()
}
