package safety

// ruleMode selects how a rule classifies an invocation of its command.
type ruleMode int

const (
	// alwaysBlocked: every invocation mutates state regardless of flags.
	alwaysBlocked ruleMode = iota
	// blockedSubcommands: blocked when the subcommand is in the write set
	// (or, for flagSubs entries, when the listed flag is present).
	blockedSubcommands
	// blockedFlags: allowed unless one of the flags is present.
	blockedFlags
	// allowedWithFlags: blocked unless one of the flags is present.
	allowedWithFlags
)

// rule is the static policy for one command name. Reason is a template whose
// single %s receives the offending command (and subcommand, where relevant)
// so callers can assert on the command name in the diagnostic.
type rule struct {
	mode     ruleMode
	writeSub map[string]bool     // blockedSubcommands: subcommands that mutate state
	flagSubs map[string][]string // blockedSubcommands: subcommand -> flags that make it destructive
	flags    []string            // blockedFlags / allowedWithFlags
	reason   string
}

// matchFlag reports whether token matches any flag in the set. Long flags
// (leading --) match by prefix so --in-place=.bak and --output=x are caught;
// short flags match exactly.
func matchFlag(token string, flags []string) bool {
	for _, f := range flags {
		if token == f {
			return true
		}
		if len(f) > 2 && f[0] == '-' && f[1] == '-' && len(token) > len(f) && token[:len(f)] == f {
			return true
		}
	}
	return false
}

// set builds a membership set from names.
func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// pkgWriteSubs is the shared write set for package managers.
var pkgWriteSubs = []string{"install", "i", "ci", "uninstall", "remove", "update", "link", "rebuild", "add"}

// commandRules is the rule table, keyed by command name. Built once at init,
// read-only afterwards; the classifier never mutates it.
var commandRules = buildRules()

func buildRules() map[string]rule {
	rules := make(map[string]rule)

	// Commands with no read-only mode at all.
	for _, name := range []string{
		"rm", "rmdir", "unlink", "shred", "mv", "cp", "touch",
		"mkdir", "chmod", "chown", "ln", "truncate", "dd", "patch",
	} {
		rules[name] = rule{mode: alwaysBlocked, reason: "destructive command: %s"}
	}

	// In-place editors.
	for _, name := range []string{"sed", "perl"} {
		rules[name] = rule{
			mode:   blockedFlags,
			flags:  []string{"-i", "--in-place"},
			reason: "%s in-place edit",
		}
	}

	rules["git"] = rule{
		mode: blockedSubcommands,
		writeSub: set("commit", "push", "merge", "rebase", "reset", "stash",
			"cherry-pick", "revert", "clean", "rm", "mv"),
		flagSubs: map[string][]string{
			"branch": {"-d", "-D"}, // deleting a branch; listing/creating is fine
		},
		reason: "%s modifies repository state",
	}

	for _, name := range []string{"npm", "yarn", "pnpm", "pip"} {
		rules[name] = rule{
			mode:     blockedSubcommands,
			writeSub: set(pkgWriteSubs...),
			reason:   "%s modifies installed packages",
		}
	}
	rules["cargo"] = rule{
		mode:     blockedSubcommands,
		writeSub: set(append(pkgWriteSubs, "build")...),
		reason:   "%s modifies installed packages or build output",
	}

	for _, name := range []string{"make", "cmake"} {
		rules[name] = rule{
			mode:   allowedWithFlags,
			flags:  []string{"-n", "--dry-run"},
			reason: "%s runs build actions",
		}
	}

	// Inline code execution is unauditable: it can perform arbitrary writes.
	for _, name := range []string{"python", "python3", "node", "ruby"} {
		rules[name] = rule{
			mode:   blockedFlags,
			flags:  []string{"-c", "-e"},
			reason: "%s inline script execution",
		}
	}

	rules["curl"] = rule{
		mode:   blockedFlags,
		flags:  []string{"-o", "--output"},
		reason: "%s writes the transfer to a file",
	}

	// wget's default behavior writes a file to disk.
	rules["wget"] = rule{mode: alwaysBlocked, reason: "%s writes downloaded files to disk"}

	return rules
}
