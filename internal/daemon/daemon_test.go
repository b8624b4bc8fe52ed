package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"testing"

	"attentionguard/internal/daemon"
	"attentionguard/internal/logging"
	"attentionguard/internal/session"
	"attentionguard/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.RunID == "" || status.APIAddress == "" {
		t.Fatalf("expected run id and api address, got %+v", status)
	}
	if status.Aggregate.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", status.Aggregate.Backend)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddress() != "" {
		t.Fatal("expected api address to clear after stop")
	}
}

func TestDurableRecordsSurviveRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithoutAPI(),
		testsupport.WithSQLite(),
		testsupport.WithDurablePersistence(true),
		testsupport.WithRulesDir("rules"),
	)
	testsupport.WriteRulePack(t, cfg.Classification.RulesDir, "mastodon",
		"source: mastodon\nrules:\n  - { pattern: 'Boosted by', category: SOCIAL_BOOST, type: social, severity: medium }\n")
	ctx := context.Background()

	first, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if got := first.Registry().RuleSources(); !slices.Contains(got, "mastodon") {
		t.Fatalf("expected rules dir pack to load, got %v", got)
	}
	if _, err := first.Aggregator().ReportStats(ctx, "tab-1", "reddit", session.Stats{Total: 5, Ads: 2, Organic: 3}); err != nil {
		t.Fatalf("ReportStats: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store := testsupport.MustOpenSQLite(t, cfg)
	stored, err := store.Get(ctx, "reddit")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Total != 5 || stored.Ads != 2 {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	second, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New after restart: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	rec, ok := second.Aggregator().GetStats("reddit")
	if !ok || rec.Total != 5 {
		t.Fatalf("expected reddit record after restart, got %+v (found=%v)", rec, ok)
	}
	if !second.Status().Aggregate.Durable {
		t.Fatal("expected durable mode to be restored")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	ctx := context.Background()

	first, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
}

func TestHTTPAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	ctx := context.Background()

	d, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	agg := d.Aggregator()
	agg.SurfaceActivated(ctx, "tab-1", "https://www.reddit.com/r/golang")
	if _, err := agg.ReportStats(ctx, "tab-1", "reddit", session.Stats{Total: 4, Ads: 1, Organic: 3}); err != nil {
		t.Fatalf("ReportStats: %v", err)
	}
	base := "http://" + d.APIAddress()

	get := func(path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, base+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	if resp := get("/api/stats", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := get("/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz to bypass auth, got %d", resp.StatusCode)
	}

	resp := get("/api/stats", "secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats daemon.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats.Records) != 1 || stats.Records[0].Source != "reddit" || stats.Records[0].Ads != 1 {
		t.Fatalf("unexpected records: %+v", stats.Records)
	}

	if resp := get("/api/stats/twitter", "secret"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unreported source, got %d", resp.StatusCode)
	}

	resp = get("/api/surfaces", "secret")
	var surfaces daemon.SurfacesResponse
	if err := json.NewDecoder(resp.Body).Decode(&surfaces); err != nil {
		t.Fatalf("decode surfaces: %v", err)
	}
	if len(surfaces.Surfaces) != 1 || surfaces.Surfaces[0].Indicator.PercentLabel != "25%" {
		t.Fatalf("unexpected surfaces: %+v", surfaces.Surfaces)
	}

	resp = get("/api/events?since=0", "secret")
	var events daemon.EventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) == 0 || events.Next == 0 {
		t.Fatalf("expected buffered events, got %+v", events)
	}

	resp = get("/metrics", "secret")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "attentionguard_reports_total") {
		t.Fatalf("metrics output missing reports counter")
	}

	var one struct {
		Source string `json:"source"`
		Total  int    `json:"total"`
	}
	resp = get("/api/stats/reddit", "secret")
	if err := json.NewDecoder(resp.Body).Decode(&one); err != nil || one.Source != "reddit" || one.Total != 4 {
		t.Fatalf("unexpected reddit record %+v (%v)", one, err)
	}

	req, err := http.NewRequest(http.MethodDelete, base+"/api/stats/reddit", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if rec, ok := agg.GetStats("reddit"); !ok || rec.Total != 0 {
		t.Fatalf("expected reddit reset, got %+v", rec)
	}
}
