package config

import (
	"testing"
	"time"
)

func TestParseStoreDriver(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"bolt", StoreDriverBolt},
		{" Redis ", StoreDriverRedis},
		{"MEMORY", StoreDriverMemory},
		{"", StoreDriverBolt},
		{"sqlite", StoreDriverBolt},
	}
	for _, tt := range tests {
		if got := parseStoreDriver(tt.raw); got != tt.want {
			t.Errorf("parseStoreDriver(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLoadIntervals(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("FLUSH_INTERVAL_MS", "-1")
	t.Setenv("START_ON_FIRST_ANSWER", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()

	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval = %v", cfg.TickInterval)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want the default for a negative value", cfg.FlushInterval)
	}
	if !cfg.StartOnFirstAnswer {
		t.Error("StartOnFirstAnswer not read")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestStoreKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"standalone progress", StoreKey.Progress("", "reading"), "progress:reading"},
		{"orchestrated progress", StoreKey.Progress("m1", "reading"), "progress:m1:reading"},
		{"completed", StoreKey.MailboxCompleted("m1", "SECTION_2"), "mailbox:m1:SECTION_2:completed"},
		{"result", StoreKey.MailboxResult("m1", "SECTION_2"), "mailbox:m1:SECTION_2:result"},
		{"force submit", StoreKey.MailboxForceSubmit("m1", "SECTION_2"), "mailbox:m1:SECTION_2:force_submit"},
		{"stage", StoreKey.OrchestratorStage("m1"), "orchestrator:m1:currentStage"},
		{"results", StoreKey.OrchestratorResults("m1"), "orchestrator:m1:stageResults"},
		{"namespace", CacheKey.CandidateNamespace(42), "candidate:42:"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s key = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
