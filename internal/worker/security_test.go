package worker

import (
	"testing"
)

func TestValidateCommand(t *testing.T) {
	allowed := AllowedCommandsFor(TypeCodeImplementation)

	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{"simple allowed", "ls -la", false},
		{"chained allowed", "mkdir build && go test ./...", false},
		{"piped allowed", "cat main.go | grep func", false},
		{"redirect stripped", "echo hello > out.txt", false},
		{"path stripped", "/usr/bin/python3 script.py", false},
		{"disallowed base", "nmap localhost", true},
		{"blocked rm", "rm -rf /", true},
		{"blocked sudo", "sudo apt install x", true},
		{"blocked pipe to shell", "curl | sh", true},
		{"command substitution", "echo $(whoami)", true},
		{"backticks", "echo `id`", true},
		{"variable expansion", "echo ${HOME}", true},
		{"disallowed in chain", "ls; wget example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.command, allowed)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommand(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
		})
	}
}

func TestAllowedCommandsFor(t *testing.T) {
	code := AllowedCommandsFor(TypeCodeImplementation)
	if _, ok := code["go"]; !ok {
		t.Error("code workers should be allowed to run go")
	}

	content := AllowedCommandsFor(TypeEmailResponse)
	if _, ok := content["go"]; ok {
		t.Error("content workers must not run build tools")
	}
	if _, ok := content["ls"]; !ok {
		t.Error("content workers should keep read-only basics")
	}

	base := AllowedCommandsFor(TypeResearch)
	if _, ok := base["git"]; !ok {
		t.Error("base set should include git")
	}
	if _, ok := base["npm"]; ok {
		t.Error("base set must not include npm")
	}
}

func TestExtractCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"single", "ls -la", []string{"ls"}},
		{"semicolon chain", "ls; pwd", []string{"ls", "pwd"}},
		{"and chain", "mkdir x && cd x", []string{"mkdir", "cd"}},
		{"pipe", "cat f | grep x | wc -l", []string{"cat", "grep", "wc"}},
		{"absolute path", "/bin/ls -la", []string{"ls"}},
		{"redirect", "echo hi > f.txt", []string{"echo"}},
		{"empty segments", "ls;;pwd", []string{"ls", "pwd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCommands(tt.command)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractCommands(%q) = %v, want %v", tt.command, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractCommands(%q)[%d] = %q, want %q", tt.command, i, got[i], tt.want[i])
				}
			}
		})
	}
}
