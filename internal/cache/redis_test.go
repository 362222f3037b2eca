package cache

import (
	"context"
	"testing"

	"github.com/maxim1976/eshop/internal/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("InitRedis: %v", err)
	}
	if Enabled() {
		t.Fatalf("cache should be disabled")
	}
	if Client() != nil {
		t.Fatalf("disabled cache should have no client")
	}

	ctx := context.Background()
	var dest map[string]string
	hit, err := GetJSON(ctx, "k", &dest)
	if err != nil || hit {
		t.Fatalf("GetJSON on disabled cache: hit=%v err=%v", hit, err)
	}
	if err := SetJSON(ctx, "k", map[string]string{"a": "b"}, 0); err != nil {
		t.Fatalf("SetJSON on disabled cache: %v", err)
	}
	if err := Del(ctx, "k"); err != nil {
		t.Fatalf("Del on disabled cache: %v", err)
	}
}

func TestKeyPrefix(t *testing.T) {
	s := &redisStore{prefix: "eshop"}
	cases := map[string]string{
		"payment_methods": "eshop:payment_methods",
		"  spaced  ":      "eshop:spaced",
		"":                "eshop",
	}
	for in, want := range cases {
		if got := s.key(in); got != want {
			t.Fatalf("key(%q) = %q, want %q", in, got, want)
		}
	}
}
