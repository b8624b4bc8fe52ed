package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"attentionguard/internal/observe"
	"attentionguard/internal/session"
	"attentionguard/internal/testsupport"
)

func TestStatusShowsRecords(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	if _, err := env.daemon.Aggregator().ReportStats(ctx, "tab-1", "reddit", session.Stats{
		Total: 4, Ads: 1, Social: 1, Organic: 2,
		Categories: map[string]int{"ADVERTISING": 1},
		Severities: map[string]int{"critical": 1},
	}); err != nil {
		t.Fatalf("ReportStats: %v", err)
	}

	out, _, err := env.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running")
	requireContains(t, out, "Reddit")
	requireContains(t, out, "50.0%")

	out, _, err = env.run(t, "", "status", "reddit")
	if err != nil {
		t.Fatalf("status reddit: %v", err)
	}
	requireContains(t, out, "ADVERTISING")
	requireContains(t, out, "critical")

	if _, _, err := env.run(t, "", "status", "twitter"); err == nil {
		t.Fatal("expected error for source without statistics")
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if _, ok := payload["status"]; !ok {
		t.Fatalf("status key missing: %s", out)
	}
}

func TestResetAndPersist(t *testing.T) {
	env := setupCLITestEnv(t)
	agg := env.daemon.Aggregator()
	if _, err := agg.ReportStats(context.Background(), "tab-1", "twitter", session.Stats{Total: 2, Ads: 2}); err != nil {
		t.Fatalf("ReportStats: %v", err)
	}

	out, _, err := env.run(t, "", "reset", "twitter")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Reset statistics for twitter")
	if rec, _ := agg.GetStats("twitter"); rec.Total != 0 {
		t.Fatalf("expected reset record, got %+v", rec)
	}

	out, _, err = env.run(t, "", "persist", "on")
	if err != nil {
		t.Fatalf("persist on: %v", err)
	}
	requireContains(t, out, "enabled")
	if !agg.Durable() {
		t.Fatal("expected durable mode after persist on")
	}
	if _, _, err := env.run(t, "", "persist", "maybe"); err == nil {
		t.Fatal("expected invalid persist argument to fail")
	}
}

func TestClassifyReadsStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "Because you follow r/golang", "classify", "--source", "reddit")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, out, "Classification: social")
	requireContains(t, out, "SOCIAL_GRAPH")
	requireContains(t, out, "reddit_")

	out, _, err = env.run(t, "", "classify", "--source", "reddit", "--text", "Promoted", "--id", "abc", "--json")
	if err != nil {
		t.Fatalf("classify --json: %v", err)
	}
	var result observe.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ID != "reddit_abc" || result.Classification != "ad" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if _, _, err := env.run(t, "text", "classify", "--source", "myspace"); err == nil {
		t.Fatal("expected unknown source to fail")
	}
}

func TestClassifyRulePackOnlySource(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRulesDir("rules"))
	testsupport.WriteRulePack(t, env.cfg.Classification.RulesDir, "mastodon",
		"source: mastodon\nrules:\n  - { pattern: 'Boosted by', category: SOCIAL_BOOST, type: social, severity: medium }\n")

	out, _, err := env.run(t, "Boosted by a friend", "classify", "--source", "mastodon")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, out, "Classification: social")
	requireContains(t, out, "mastodon_")

	_, _, err = env.run(t, "text", "classify", "--source", "myspace")
	if err == nil {
		t.Fatal("expected unknown source to fail")
	}
	requireContains(t, err.Error(), "mastodon")
	requireContains(t, err.Error(), "youtube")
}

func TestFeedReportsToDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	lines := []string{
		`{"id":"a","text":"Promoted"}`,
		`{"id":"b","text":"Because you follow r/golang"}`,
		`not json`,
		``,
		`{"id":"a","text":"Promoted"}`,
		`{"id":"c","text":"An ordinary post about Go"}`,
	}
	out, stderr, err := env.run(t, strings.Join(lines, "\n"), "feed", "--source", "reddit", "--surface", "cli-1", "--close")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	requireContains(t, stderr, "line 3")
	requireContains(t, out, "3 items")

	rec, ok := env.daemon.Aggregator().GetStats("reddit")
	if !ok || rec.Total != 3 || rec.Ads != 1 || rec.Social != 1 || rec.Organic != 1 {
		t.Fatalf("unexpected aggregated record: %+v", rec)
	}
	if _, active := env.daemon.Aggregator().ActiveSurfaces()["cli-1"]; active {
		t.Fatal("expected surface closed after feed --close")
	}
}

func TestFeedAcceptsRulePackOnlySource(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithRulesDir("rules"))
	testsupport.WriteRulePack(t, env.cfg.Classification.RulesDir, "mastodon",
		"source: mastodon\nrules:\n  - { pattern: 'Boosted by', category: SOCIAL_BOOST, type: social, severity: medium }\n")

	out, _, err := env.run(t, `{"id":"1","text":"Boosted by a friend"}`, "feed", "--source", "mastodon", "--surface", "cli-m")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	requireContains(t, out, "1 items")
	rec, ok := env.daemon.Aggregator().GetStats("mastodon")
	if !ok || rec.Social != 1 {
		t.Fatalf("unexpected aggregated record: %+v", rec)
	}

	if _, _, err := env.run(t, "", "feed", "--source", "myspace"); err == nil {
		t.Fatal("expected unknown source to fail")
	}
}

func TestWatchOnce(t *testing.T) {
	env := setupCLITestEnv(t)
	env.daemon.Aggregator().SurfaceActivated(context.Background(), "tab-7", "https://www.linkedin.com/feed/")

	out, _, err := env.run(t, "", "watch", "--once")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "surface_changed")
	requireContains(t, out, "surface=tab-7")
}

func TestDialErrorMentionsDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.sock")
	_, _, err := runCLI(t, nil, []string{"status"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "attentionguard daemon")
}

func TestConfigInitAndShow(t *testing.T) {
	target := filepath.Join(t.TempDir(), "attentionguard.toml")
	out, _, err := runCLI(t, nil, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
	if _, _, err := runCLI(t, nil, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init without --overwrite to refuse existing file")
	}
	out, _, err = runCLI(t, nil, []string{"config", "init", "--stdout"}, "", "")
	if err != nil {
		t.Fatalf("config init --stdout: %v", err)
	}
	requireContains(t, out, "# AttentionGuard configuration")

	env := setupCLITestEnv(t)
	env.cfg.Paths.APIToken = "hunter2"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = env.run(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "durable_backend")
	if strings.Contains(out, "hunter2") {
		t.Fatal("config show must mask the api token")
	}
}

func TestLogsPrintsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.LogDir, "attentionguard.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err := env.run(t, "", "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.sock")
	out, _, err := runCLI(t, nil, []string{"stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "not running")
}

func TestStopRefusesOwnProcess(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := env.run(t, "", "stop")
	if err == nil {
		t.Fatal("expected stop to refuse signalling the test process")
	}
	requireContains(t, err.Error(), "refusing")
}
