package records_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"attentionguard/internal/records"
	"attentionguard/internal/session"
	"attentionguard/internal/testsupport"
)

func sampleRecord(source string, total int) records.Record {
	start := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	rec := records.Empty(source, start)
	rec.Total = total
	rec.Ads = 1
	rec.Social = 1
	rec.Organic = total - 2
	rec.Categories = map[string]int{"ADVERTISING": 1, "SOCIAL_LIKE": 1}
	rec.Severities = map[string]int{"critical": 1, "medium": 1}
	rec.LastUpdate = start.Add(time.Minute)
	return rec
}

func assertSameRecord(t *testing.T, got, want records.Record) {
	t.Helper()
	if got.Source != want.Source || got.Total != want.Total || got.Ads != want.Ads ||
		got.Algorithmic != want.Algorithmic || got.Social != want.Social || got.Organic != want.Organic {
		t.Fatalf("counters differ: got %+v want %+v", got, want)
	}
	if !got.StartTime.Equal(want.StartTime) || !got.LastUpdate.Equal(want.LastUpdate) {
		t.Fatalf("timestamps differ: got %v/%v want %v/%v", got.StartTime, got.LastUpdate, want.StartTime, want.LastUpdate)
	}
	if len(got.Categories) != len(want.Categories) || len(got.Severities) != len(want.Severities) {
		t.Fatalf("maps differ: got %v/%v want %v/%v", got.Categories, got.Severities, want.Categories, want.Severities)
	}
	for k, v := range want.Categories {
		if got.Categories[k] != v {
			t.Fatalf("category %s = %d, want %d", k, got.Categories[k], v)
		}
	}
	for k, v := range want.Severities {
		if got.Severities[k] != v {
			t.Fatalf("severity %s = %d, want %d", k, got.Severities[k], v)
		}
	}
}

func exerciseBackend(t *testing.T, backend records.Durable) {
	t.Helper()
	ctx := context.Background()

	if _, err := backend.Get(ctx, "reddit"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reddit := sampleRecord("reddit", 5)
	if err := backend.Put(ctx, reddit); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := backend.Get(ctx, "reddit")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertSameRecord(t, got, reddit)

	reddit.Total = 3
	reddit.Organic = 1
	if err := backend.Put(ctx, reddit); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, _ = backend.Get(ctx, "reddit")
	if got.Total != 3 {
		t.Fatalf("expected overwrite to total 3, got %d", got.Total)
	}

	replacement := map[string]records.Record{
		"twitter": sampleRecord("twitter", 4),
		"youtube": sampleRecord("youtube", 9),
	}
	if err := backend.Replace(ctx, replacement); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	all, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records after replace, got %d", len(all))
	}
	if _, ok := all["reddit"]; ok {
		t.Fatal("replace kept a stale record")
	}
	assertSameRecord(t, all["youtube"], replacement["youtube"])

	if err := backend.Replace(ctx, nil); err != nil {
		t.Fatalf("Replace empty: %v", err)
	}
	if all, _ := backend.Load(ctx); len(all) != 0 {
		t.Fatalf("expected empty backend, got %d records", len(all))
	}

	if _, err := backend.LoadSettings(ctx); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before settings are saved, got %v", err)
	}
	if err := backend.SaveSettings(ctx, records.Settings{DurablePersistence: true}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	settings, err := backend.LoadSettings(ctx)
	if err != nil || !settings.DurablePersistence {
		t.Fatalf("expected durable setting, got %+v %v", settings, err)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, records.NewMemory())
}

func TestMemoryBackendIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	m := records.NewMemory()
	rec := sampleRecord("reddit", 5)
	if err := m.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Categories["ADVERTISING"] = 99
	got, _ := m.Get(ctx, "reddit")
	if got.Categories["ADVERTISING"] != 1 {
		t.Fatal("stored record aliases caller map")
	}
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "records.db")
	backend, err := records.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	exerciseBackend(t, backend)
}

func TestOpenDurableSelectsBackend(t *testing.T) {
	memory := testsupport.MustOpenDurable(t, testsupport.NewConfig(t))
	if memory.Name() != "memory" {
		t.Fatalf("expected memory backend, got %q", memory.Name())
	}

	cfg := testsupport.NewConfig(t, testsupport.WithSQLite())
	sqlite := testsupport.MustOpenDurable(t, cfg)
	if sqlite.Name() != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", sqlite.Name())
	}
	exerciseBackend(t, sqlite)
	if _, err := os.Stat(cfg.Store.SQLitePath); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")
	first, err := records.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	want := sampleRecord("linkedin", 7)
	if err := first.Put(ctx, want); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := records.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.Get(ctx, "linkedin")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	assertSameRecord(t, got, want)
}

func TestRedisBackend(t *testing.T) {
	if os.Getenv("ATTENTIONGUARD_REDIS_TEST") != "1" {
		t.Skip("set ATTENTIONGUARD_REDIS_TEST=1 to run against a local redis")
	}
	addr := os.Getenv("ATTENTIONGUARD_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	backend, err := records.OpenRedis(ctx, records.RedisOptions{
		Address:   addr,
		KeyPrefix: "attentionguard-test:" + uuid.NewString() + ":",
	})
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() {
		_ = backend.Replace(ctx, nil)
		_ = backend.Close()
	})
	exerciseBackend(t, backend)
}

func TestOverwriteReplacesCountersAndKeepsStart(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(time.Hour)
	rec := records.Empty("reddit", start)

	first := rec.Overwrite(session.Stats{Total: 5, Ads: 2, Organic: 3, Categories: map[string]int{"ADVERTISING": 2}}, now)
	second := first.Overwrite(session.Stats{Total: 3, Organic: 3, StartTime: now}, now.Add(time.Second))

	if second.Total != 3 || second.Ads != 0 || len(second.Categories) != 0 {
		t.Fatalf("expected last report to win in full, got %+v", second)
	}
	if !second.StartTime.Equal(start) {
		t.Fatalf("start time changed to %v", second.StartTime)
	}
	if !second.LastUpdate.Equal(now.Add(time.Second)) {
		t.Fatalf("unexpected last update %v", second.LastUpdate)
	}
	if first.Total != 5 {
		t.Fatal("Overwrite mutated its receiver")
	}
}

func TestRecordRate(t *testing.T) {
	rec := records.Record{Total: 3, Ads: 1, Social: 1, Organic: 1}
	if rec.Rate() != 66.7 {
		t.Fatalf("expected 66.7, got %v", rec.Rate())
	}
	if (records.Record{}).Rate() != 0 {
		t.Fatal("empty record rate should be 0")
	}
}
