package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

// Requires a reachable server; set REDIS_URL (e.g. redis://localhost:6379/15).
func TestRedis_SaveLoad(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prefix := "tramites-test:" + t.Name() + ":"
	r, err := DialRedis(ctx, url, prefix)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer r.Close()
	t.Cleanup(func() { r.client.Del(context.Background(), prefix+"fechas") })

	got, err := r.Load(ctx, "fechas")
	if err != nil || len(got) != 0 {
		t.Fatalf("Load missing = %s, %v", got, err)
	}
	if err := r.Save(ctx, "fechas", rawList(`{"id":"1"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = r.Load(ctx, "fechas")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || string(got[0]) != `{"id":"1"}` {
		t.Errorf("loaded = %s", got)
	}
}

func TestDialRedis_BadURL(t *testing.T) {
	if _, err := DialRedis(context.Background(), "not-a-url", ""); err == nil {
		t.Error("expected parse error")
	}
}
