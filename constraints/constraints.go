// Package constraints implements the security envelope every tool call
// passes through: path confinement, command allowlisting, timeout capping,
// and output truncation. Every validator here is pure and side-effect-free.
package constraints

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Constraints is immutable after construction.
type Constraints struct {
	AllowedRoot      string
	CommandAllowlist map[string]struct{}
	TimeoutSec       int
	MaxOutputSize    int
}

// New builds a Constraints, canonicalising allowedRoot and creating it if
// it does not yet exist (mirrors the teacher's wickfs workspace bootstrap).
func New(allowedRoot string, allowlist []string, timeoutSec, maxOutputSize int) (*Constraints, error) {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	if maxOutputSize <= 0 {
		maxOutputSize = 200_000
	}

	abs, err := filepath.Abs(allowedRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve allowed root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create allowed root: %w", err)
	}
	canon, err := canonicalize(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize allowed root: %w", err)
	}

	set := make(map[string]struct{}, len(allowlist))
	for _, c := range allowlist {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}

	return &Constraints{
		AllowedRoot:      canon,
		CommandAllowlist: set,
		TimeoutSec:       timeoutSec,
		MaxOutputSize:    maxOutputSize,
	}, nil
}

// canonicalize resolves symlinks to their final target. The path need not
// exist yet: EvalSymlinks is applied to the longest existing prefix, with
// the remaining (not-yet-created) components appended unresolved.
func canonicalize(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return filepath.Clean(resolved), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(p)
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == "" || dir == p {
		return filepath.Clean(p), nil
	}
	resolvedDir, err := canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// ValidatePath resolves p against AllowedRoot (if relative) or uses p
// directly (if absolute), canonicalises it, and fails unless the result is
// a descendant of the canonical AllowedRoot. When AllowedRoot is "/" the
// check always succeeds.
func (c *Constraints) ValidatePath(p string) (ok bool, reason string) {
	var candidate string
	if filepath.IsAbs(p) {
		candidate = p
	} else {
		candidate = filepath.Join(c.AllowedRoot, p)
	}

	canon, err := canonicalize(candidate)
	if err != nil {
		return false, fmt.Sprintf("cannot resolve path: %v", err)
	}

	if c.AllowedRoot == string(filepath.Separator) {
		return true, ""
	}

	if canon != c.AllowedRoot && !strings.HasPrefix(canon, c.AllowedRoot+string(filepath.Separator)) {
		return false, fmt.Sprintf("path %q resolves outside allowed root", p)
	}
	return true, ""
}

// ResolvePath returns the on-disk location for a path callers have already
// validated: p joined onto AllowedRoot (if relative) or cleaned (if
// absolute). Unlike ValidatePath it does not resolve symlinks.
func (c *Constraints) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.AllowedRoot, p)
}

// ValidateCommand tokenises cmd on whitespace and checks the first token
// against the allowlist. An empty allowlist accepts everything. No shell
// semantics beyond first-token extraction — exec_cmd still runs through a
// shell, so this is not a sandbox against shell metacharacters.
func (c *Constraints) ValidateCommand(cmd string) (ok bool, reason string) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false, "empty command"
	}
	if len(c.CommandAllowlist) == 0 {
		return true, ""
	}
	if _, allowed := c.CommandAllowlist[fields[0]]; !allowed {
		return false, fmt.Sprintf("command %q not allowed", fields[0])
	}
	return true, ""
}

// EffectiveTimeout returns min(requested, TimeoutSec). requested <= 0 means
// "no preference", in which case TimeoutSec alone applies.
func (c *Constraints) EffectiveTimeout(requested int) int {
	if requested <= 0 || requested > c.TimeoutSec {
		return c.TimeoutSec
	}
	return requested
}

const truncationMarkerTag = " chars hidden) ...\n"

// TruncateOutput returns s unchanged if it fits within cap; otherwise it
// keeps cap/2 bytes from each end and replaces the middle with a marker
// reporting exactly how many characters were hidden. A string that already
// carries the marker is left alone, which is what makes the operation
// idempotent despite the result itself exceeding cap by the marker's length.
func TruncateOutput(s string, cap int) string {
	if cap <= 0 || len(s) <= cap {
		return s
	}
	if strings.Contains(s, truncationMarkerTag) {
		return s
	}
	kept := cap / 2
	hidden := len(s) - 2*kept
	marker := fmt.Sprintf("\n... (%d%s", hidden, truncationMarkerTag)
	return s[:kept] + marker + s[len(s)-kept:]
}

// TruncateOutput applies the package-level TruncateOutput using c's
// configured MaxOutputSize as the cap.
func (c *Constraints) TruncateOutput(s string) string {
	return TruncateOutput(s, c.MaxOutputSize)
}
