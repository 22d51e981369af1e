// Package safety implements the command safety classifier: a pure, static
// analysis of shell command text that decides whether the command can mutate
// the filesystem, repository state, installed packages, or network-delivered
// files. It recognizes known destructive patterns across compound commands,
// pipelines, and redirections; it never executes or simulates anything.
//
// The classifier is deliberately conservative where parsing is ambiguous and
// deliberately permissive for unrecognized commands: a command name outside
// the rule table is allowed. That false-negative risk is an accepted policy
// trade-off, not an oversight.
package safety

import "fmt"

// Verdict is the classifier's decision for a command line. A blocked verdict
// carries a short human-readable reason naming the offending construct.
type Verdict struct {
	Blocked bool
	Reason  string
}

func blockedVerdict(format string, args ...any) Verdict {
	return Verdict{Blocked: true, Reason: fmt.Sprintf(format, args...)}
}

// CheckCommandSafety classifies raw command text and returns "" when the
// command is safe to execute, or a non-empty diagnostic naming the detected
// destructive construct. It is a total function: any input, including
// malformed quoting, produces a verdict.
func CheckCommandSafety(command string) string {
	return Classify(command).Reason
}

// Classify returns the structured verdict for raw command text. The input is
// segmented into individual command invocations; the verdict is blocked iff
// at least one segment is blocked, scanning lines then segments left to
// right, so the reason reported is always the first offender.
func Classify(command string) Verdict {
	segs, hasTee := segment(command)
	if hasTee {
		return blockedVerdict("tee writes through to files")
	}
	for _, seg := range segs {
		if v := classifySegment(seg); v.Blocked {
			return v
		}
	}
	return Verdict{}
}

// classifySegment applies the rule table to a single segment. Evaluation
// order matters: a redirect blocks before any command-name rule is
// consulted, since any redirect implies a file write no matter which
// command produced the output.
func classifySegment(seg Segment) Verdict {
	if seg.HasRedirect {
		return blockedVerdict("output redirect (> or >>)")
	}
	name := seg.Command()
	if name == "" {
		return Verdict{}
	}

	r, ok := commandRules[name]
	if !ok {
		// Permissive default: unrecognized commands (cat, grep, find, ls,
		// head, tail, diff, stat, ...) fall through.
		return Verdict{}
	}

	switch r.mode {
	case alwaysBlocked:
		return blockedVerdict(r.reason, name)

	case blockedSubcommands:
		if len(seg.Tokens) < 2 {
			return Verdict{}
		}
		sub := seg.Tokens[1]
		if r.writeSub[sub] {
			return blockedVerdict(r.reason, name+" "+sub)
		}
		if flags, ok := r.flagSubs[sub]; ok {
			for _, tok := range seg.Tokens[2:] {
				if matchFlag(tok, flags) {
					return blockedVerdict(r.reason, name+" "+sub+" "+tok)
				}
			}
		}
		return Verdict{}

	case blockedFlags:
		for _, tok := range seg.Tokens[1:] {
			if matchFlag(tok, r.flags) {
				return blockedVerdict(r.reason, name)
			}
		}
		return Verdict{}

	case allowedWithFlags:
		for _, tok := range seg.Tokens[1:] {
			if matchFlag(tok, r.flags) {
				return Verdict{}
			}
		}
		return blockedVerdict(r.reason, name)
	}

	return Verdict{}
}
