package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := []string{"login", "logout", "status", "config", "version"}

	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing subcommand %q", name)
		}
	}
}

func TestRootCommand_Help(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("help execution failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "login screen") {
		t.Errorf("help output missing description, got %q", out)
	}
	if !strings.Contains(out, "--config") {
		t.Errorf("help output missing --config flag, got %q", out)
	}
}

func TestRedact(t *testing.T) {
	if got := redact(""); got != "" {
		t.Errorf("redact(\"\") = %q, want empty", got)
	}
	if got := redact("s3cret"); got == "s3cret" || got == "" {
		t.Errorf("redact should mask the value, got %q", got)
	}
}
