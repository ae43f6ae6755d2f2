package worker

import (
	"fmt"
	"regexp"
	"strings"
)

// Shell command screening for workers that request command execution.
// Allowlist-based: a command line is rejected if it contains a blocked
// pattern, shows injection syntax, or names a base command outside the
// worker type's allowlist.

// baseAllowedCommands are safe for all worker types.
var baseAllowedCommands = commandSet(
	"ls", "cat", "head", "tail", "wc", "grep", "find",
	"pwd", "echo", "date", "hostname",
	"git",
)

// codeWorkerCommands extend the base set for code-producing workers.
var codeWorkerCommands = merge(baseAllowedCommands, commandSet(
	"cp", "mkdir", "chmod", "touch", "mv",
	"npm", "node", "python", "python3", "pip",
	"pytest", "vitest", "jest", "make", "cargo", "go",
))

// contentWorkerCommands restrict email/content workers to read-only basics.
var contentWorkerCommands = commandSet("ls", "pwd", "date", "echo")

// blockedPhrases are never allowed regardless of allowlist, matched as
// substrings of the full command line.
var blockedPhrases = []string{
	"rm -rf /", "rm -rf ~", "rm -rf *",
	"chmod 777", "curl | sh", "curl | bash", "wget | sh", "wget | bash",
	"> /dev/sda", "dd if=", "pkill -9", "kill -9",
}

// blockedCommands are never allowed as a base command.
var blockedCommands = commandSet(
	"sudo", "su", "passwd", "eval", "exec",
	"mkfs", "fdisk", "format", "taskkill",
)

// injectionPatterns catch command substitution and variable expansion.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\(.*\)`),
	regexp.MustCompile("`.*`"),
	regexp.MustCompile(`\$\{.*\}`),
}

// AllowedCommandsFor returns the command allowlist for a worker type.
func AllowedCommandsFor(t TaskType) map[string]struct{} {
	switch t {
	case TypeCodeImplementation:
		return codeWorkerCommands
	case TypeEmailResponse, TypeContentWriting:
		return contentWorkerCommands
	default:
		return baseAllowedCommands
	}
}

// ValidateCommand screens a shell command line against an allowlist.
func ValidateCommand(command string, allowed map[string]struct{}) error {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, blocked := range blockedPhrases {
		if strings.Contains(lower, blocked) {
			return fmt.Errorf("command contains blocked pattern %q", blocked)
		}
	}
	for _, re := range injectionPatterns {
		if re.MatchString(command) {
			return fmt.Errorf("command contains injection pattern %q", re.String())
		}
	}

	for _, base := range ExtractCommands(command) {
		if _, ok := blockedCommands[base]; ok {
			return fmt.Errorf("command %q is blocked", base)
		}
		if _, ok := allowed[base]; !ok {
			return fmt.Errorf("command %q is not in the allowed commands list", base)
		}
	}
	return nil
}

// ExtractCommands splits a command line on shell separators and returns
// the base command of each segment.
func ExtractCommands(command string) []string {
	segments := []string{command}
	for _, sep := range []string{";", "&&", "||", "|"} {
		var next []string
		for _, seg := range segments {
			next = append(next, strings.Split(seg, sep)...)
		}
		segments = next
	}

	var bases []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		// Strip redirections before taking the first word.
		if idx := strings.IndexAny(seg, "<>"); idx >= 0 {
			seg = strings.TrimSpace(seg[:idx])
		}
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		base := fields[0]
		if slash := strings.LastIndex(base, "/"); slash >= 0 {
			base = base[slash+1:]
		}
		bases = append(bases, base)
	}
	return bases
}

func commandSet(cmds ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(cmds))
	for _, c := range cmds {
		set[c] = struct{}{}
	}
	return set
}

func merge(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
