package app_test

import (
	"context"
	"testing"

	"vidresolve/internal/app"
	"vidresolve/internal/config"
	"vidresolve/internal/identifier"
	"vidresolve/internal/testsupport"
)

const legacyAsset = "Lg12Cd34Ef56Gh78Ij90Kl12Mn34Op56Qr78St90Uv12"

func TestBuildSeedsCacheFromConfig(t *testing.T) {
	fake := testsupport.NewFakeProvider(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithProviderURL(fake.URL()),
		testsupport.WithSeed("legacy-upload-ref", "PBLEGACY", legacyAsset),
	)

	c, err := app.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})

	entry, ok := c.Cache.Get(legacyAsset)
	if !ok || !entry.Seeded || !entry.Permanent {
		t.Fatalf("expected seeded permanent entry, got %+v (ok=%v)", entry, ok)
	}

	result := c.Resolver.Resolve(context.Background(), legacyAsset)
	if result.PlaybackURL != "https://stream.mux.com/PBLEGACY.m3u8" {
		t.Fatalf("unexpected seeded resolution %+v", result)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("seeded lookups must not reach the provider, got %d calls", fake.TotalCalls())
	}
	if c.Store.Driver() != "sqlite" {
		t.Fatalf("expected sqlite store, got %q", c.Store.Driver())
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := app.Build(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSeedResultsSkipsIncompleteSeeds(t *testing.T) {
	rules := identifier.DefaultRules()
	got := app.SeedResults(rules, []config.CacheSeed{
		{Reference: "ref-a", PlaybackID: "PBA"},
		{Reference: "ref-b"},
		{Reference: "ref-c", PlaybackID: "PBC", AssetID: legacyAsset},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 keys, got %d: %+v", len(got), got)
	}
	if _, ok := got["ref-b"]; ok {
		t.Fatal("seed without playback id must be skipped")
	}
	if got[legacyAsset].PlaybackID != "PBC" || got["ref-c"].AssetID != legacyAsset {
		t.Fatalf("unexpected seeded results %+v", got)
	}
	if !got["ref-a"].IsResolved() {
		t.Fatalf("expected resolved result for ref-a, got %+v", got["ref-a"])
	}
}
