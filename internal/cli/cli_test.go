package cli

import (
	"strings"
	"testing"
)

func TestParseCommands(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		want    Command
		wantErr bool
	}{
		{name: "no args defaults to help", args: nil, want: CommandHelp},
		{name: "toggle", args: []string{"toggle"}, want: CommandToggle},
		{name: "stop", args: []string{"stop"}, want: CommandStop},
		{name: "cancel", args: []string{"cancel"}, want: CommandCancel},
		{name: "flush", args: []string{"flush"}, want: CommandFlush},
		{name: "status", args: []string{"status"}, want: CommandStatus},
		{name: "doctor", args: []string{"doctor"}, want: CommandDoctor},
		{name: "version flag", args: []string{"--version"}, want: CommandVersion},
		{name: "unknown command", args: []string{"transcribe"}, wantErr: true},
		{name: "unknown flag", args: []string{"--verbose"}, wantErr: true},
		{name: "trailing args rejected", args: []string{"toggle", "extra"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for args %v", tc.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) error = %v", tc.args, err)
			}
			if parsed.Command != tc.want {
				t.Fatalf("Parse(%v) command = %s, want %s", tc.args, parsed.Command, tc.want)
			}
		})
	}
}

func TestParseConfigPath(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/scrivo.conf", "toggle"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.ConfigPath != "/tmp/scrivo.conf" {
		t.Fatalf("unexpected config path %q", parsed.ConfigPath)
	}
	if parsed.Command != CommandToggle {
		t.Fatalf("unexpected command %q", parsed.Command)
	}

	if _, err := Parse([]string{"--config"}); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestHelpTextMentionsAllCommands(t *testing.T) {
	help := HelpText("scrivo")
	for cmd := range validCommands {
		if !strings.Contains(help, string(cmd)) {
			t.Fatalf("help text missing command %q", cmd)
		}
	}
}
