package risk

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ThreatIntel reports addresses known to be malicious.
type ThreatIntel interface {
	Listed(ctx context.Context, ip string) (bool, error)
}

// StaticList is an in-memory set of addresses and CIDR prefixes.
type StaticList struct {
	prefixes []netip.Prefix
}

// NewStaticList parses entries as either bare addresses or CIDR prefixes.
func NewStaticList(entries ...string) (*StaticList, error) {
	l := &StaticList{prefixes: make([]netip.Prefix, 0, len(entries))}
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("threat list entry %q: %w", raw, err)
			}
			l.prefixes = append(l.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("threat list entry %q: %w", raw, err)
		}
		l.prefixes = append(l.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return l, nil
}

// Listed reports whether ip falls inside any entry. Unparseable addresses
// are not listed.
func (l *StaticList) Listed(_ context.Context, ip string) (bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false, nil
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true, nil
		}
	}
	return false, nil
}

// RedisSet checks membership in a Redis set fed by an external reputation
// pipeline.
type RedisSet struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisSet returns a ThreatIntel backed by the set at key.
func NewRedisSet(redisClient redis.UniversalClient, key string) *RedisSet {
	if key == "" {
		key = "threat:ips"
	}
	return &RedisSet{redis: redisClient, key: key}
}

// Listed runs SISMEMBER.
func (s *RedisSet) Listed(ctx context.Context, ip string) (bool, error) {
	ok, err := s.redis.SIsMember(ctx, s.key, ip).Result()
	if err != nil {
		return false, fmt.Errorf("threat set lookup: %w", err)
	}
	return ok, nil
}

// Add inserts addresses into the set.
func (s *RedisSet) Add(ctx context.Context, ips ...string) error {
	if len(ips) == 0 {
		return nil
	}
	members := make([]interface{}, len(ips))
	for i, ip := range ips {
		members[i] = ip
	}
	return s.redis.SAdd(ctx, s.key, members...).Err()
}

// AnyOf reports an address as listed when any source does. A source error
// only surfaces when no other source lists the address.
func AnyOf(sources ...ThreatIntel) ThreatIntel {
	return anyOf(sources)
}

type anyOf []ThreatIntel

func (a anyOf) Listed(ctx context.Context, ip string) (bool, error) {
	var errs []error
	for _, src := range a {
		if src == nil {
			continue
		}
		ok, err := src.Listed(ctx, ip)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}
