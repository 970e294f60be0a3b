package natskv_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/BaoNguyen09/repo-explainer/internal/adapter/natskv"
	"github.com/BaoNguyen09/repo-explainer/internal/port/cache"
	"github.com/BaoNguyen09/repo-explainer/internal/port/cache/cachetest"
)

var _ cache.Cache = (*natskv.Cache)(nil)

func testKV(t *testing.T) jetstream.KeyValue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	bucket := fmt.Sprintf("NATSKV_TEST_%d", time.Now().UnixNano())
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = js.DeleteKeyValue(context.Background(), bucket) })
	return kv
}

func TestCompliance(t *testing.T) {
	cachetest.Run(t, natskv.New(testKV(t), "explain"), nil)
}

func TestInvalidKeyRejected(t *testing.T) {
	c := natskv.New(nil, "")
	ctx := context.Background()
	for _, key := range []string{"", ".lead", "trail.", "has space", "star*"} {
		if _, _, err := c.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) expected error", key)
		}
		if err := c.Set(ctx, key, nil, 0); err == nil {
			t.Errorf("Set(%q) expected error", key)
		}
	}
}
