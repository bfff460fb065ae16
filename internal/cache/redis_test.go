package cache

import (
	"context"
	"testing"
)

func TestKey(t *testing.T) {
	if got := Key("u-42"); got != "tasks:user:u-42" {
		t.Errorf("Key = %q", got)
	}
}

func TestDisabledCacheDegrades(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*TaskLists{nil, New(nil, 0)} {
		if _, ok := c.GetRaw(ctx, "u1"); ok {
			t.Error("Expected miss without a client")
		}
		c.SetRaw(ctx, "u1", []byte(`{}`))
		c.SetRawAsync("u1", []byte(`{}`))
		c.Invalidate(ctx, "u1")
		if err := c.Ping(ctx); err == nil {
			t.Error("Expected ping error without a client")
		}
	}
}
