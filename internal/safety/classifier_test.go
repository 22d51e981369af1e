package safety

import (
	"strings"
	"sync"
	"testing"
)

func assertBlocked(t *testing.T, command, wantSubstr string) {
	t.Helper()
	reason := CheckCommandSafety(command)
	if reason == "" {
		t.Fatalf("CheckCommandSafety(%q) = allowed, want blocked mentioning %q", command, wantSubstr)
	}
	if !strings.Contains(reason, wantSubstr) {
		t.Fatalf("CheckCommandSafety(%q) = %q, want reason containing %q", command, reason, wantSubstr)
	}
}

func assertAllowed(t *testing.T, command string) {
	t.Helper()
	if reason := CheckCommandSafety(command); reason != "" {
		t.Fatalf("CheckCommandSafety(%q) = %q, want allowed", command, reason)
	}
}

func TestCheckCommandSafety_EmptyAndComments(t *testing.T) {
	cases := []struct {
		name    string
		command string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"newlines", "\n\n"},
		{"mixed whitespace", "\t  \n   "},
		{"comment", "# comment"},
		{"indented comment", "  # indented comment"},
		{"comment naming rm", "# rm -rf /"},
		{"comment no space", "#rm file"},
		{"blank lines around comment", "\n# comment\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertAllowed(t, tc.command)
		})
	}
}

func TestCheckCommandSafety_Redirects(t *testing.T) {
	blocked := []struct {
		name    string
		command string
	}{
		{"simple redirect", "echo hi > out.txt"},
		{"append redirect", "echo hi >> log.txt"},
		{"stderr redirect", "ls 2> err.txt"},
		{"cat to file", "cat a.txt > b.txt"},
		{"no space before target", "echo test >out"},
		{"redirect at pipeline end", "grep foo bar.txt | sort > sorted.txt"},
		{"redirect with no filename", "echo >"},
		{"redirect trailing space", "ls > "},
		{"stderr to stdout", "echo hello 2>&1"},
	}
	for _, tc := range blocked {
		t.Run(tc.name, func(t *testing.T) {
			assertBlocked(t, tc.command, "redirect")
		})
	}

	allowed := []struct {
		name    string
		command string
	}{
		{"quoted gt", `echo ">"`},
		{"gt inside double quotes", `echo "a > b"`},
		{"quoted append", `echo '>>'`},
		{"grep for quoted gt", `grep ">" file.txt`},
	}
	for _, tc := range allowed {
		t.Run(tc.name, func(t *testing.T) {
			assertAllowed(t, tc.command)
		})
	}
}

func TestCheckCommandSafety_Tee(t *testing.T) {
	blocked := []struct {
		name    string
		command string
	}{
		{"pipe to tee", "echo hi | tee out.txt"},
		{"tee mid pipeline", "cat log.txt | tee -a copy.txt | grep error"},
		{"bare tee", "tee notes.txt"},
	}
	for _, tc := range blocked {
		t.Run(tc.name, func(t *testing.T) {
			assertBlocked(t, tc.command, "tee")
		})
	}

	t.Run("tee as argument only", func(t *testing.T) {
		assertAllowed(t, "ls | grep tee")
	})
	t.Run("tee as echo text", func(t *testing.T) {
		assertAllowed(t, "echo tee")
	})
}

func TestCheckCommandSafety_DestructiveCommands(t *testing.T) {
	cases := []struct {
		command string
		want    string
	}{
		{"rm file.txt", "rm"},
		{"rmdir tmp", "rmdir"},
		{"unlink f.txt", "unlink"},
		{"shred secret.txt", "shred"},
		{"mv a.txt b.txt", "mv"},
		{"cp a.txt b.txt", "cp"},
		{"touch new.txt", "touch"},
		{"mkdir build", "mkdir"},
		{"chmod +x run.sh", "chmod"},
		{"chown user f.txt", "chown"},
		{"ln -s target link", "ln"},
		{"truncate -s 0 f.txt", "truncate"},
		{"dd if=/dev/zero of=disk.img", "dd"},
		{"patch -p1 notes.patch", "patch"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assertBlocked(t, tc.command, tc.want)
		})
	}

	t.Run("absolute path", func(t *testing.T) {
		assertBlocked(t, "/bin/rm -rf tmp", "rm")
	})
	t.Run("trailing slash", func(t *testing.T) {
		assertBlocked(t, "rm -rf ./tmp/", "rm")
	})
	t.Run("extra whitespace", func(t *testing.T) {
		assertBlocked(t, "  rm   file.txt  ", "rm")
	})
}

func TestCheckCommandSafety_InPlaceEditors(t *testing.T) {
	blocked := []struct {
		name    string
		command string
		want    string
	}{
		{"sed -i", "sed -i s/a/b/ file.txt", "sed"},
		{"sed --in-place", "sed --in-place s/a/b/ file.txt", "in-place"},
		{"sed --in-place with suffix", "sed --in-place=.bak s/a/b/ file.txt", "in-place"},
		{"perl -i", "perl -i -pe s/a/b/ file.txt", "perl"},
	}
	for _, tc := range blocked {
		t.Run(tc.name, func(t *testing.T) {
			assertBlocked(t, tc.command, tc.want)
		})
	}

	allowed := []struct {
		name    string
		command string
	}{
		{"sed to stdout", "sed s/a/b/ file.txt"},
		{"sed print range", "sed -n 1,10p file.txt"},
		{"perl script", "perl script.pl"},
	}
	for _, tc := range allowed {
		t.Run(tc.name, func(t *testing.T) {
			assertAllowed(t, tc.command)
		})
	}
}

func TestCheckCommandSafety_Git(t *testing.T) {
	blocked := []string{
		`git commit -m "msg"`,
		"git push origin main",
		"git merge feature",
		"git rebase main",
		"git reset --hard HEAD~1",
		"git stash",
		"git cherry-pick abc123",
		"git revert HEAD",
		"git clean -fd",
		"git rm file.txt",
		"git mv a.txt b.txt",
		"git branch -d feature",
		"git branch -D feature",
	}
	for _, cmd := range blocked {
		t.Run(cmd, func(t *testing.T) {
			assertBlocked(t, cmd, "git")
		})
	}

	allowed := []string{
		"git branch",
		"git branch new-feature",
		"git log --oneline",
		"git diff HEAD~1",
		"git show abc123",
		"git status",
		"git remote -v",
		"git blame main.go",
		"git shortlog -sn",
		"git",
	}
	for _, cmd := range allowed {
		t.Run(cmd, func(t *testing.T) {
			assertAllowed(t, cmd)
		})
	}
}

func TestCheckCommandSafety_PackageManagers(t *testing.T) {
	blocked := []string{
		"npm install express",
		"npm i lodash",
		"npm ci",
		"npm uninstall left-pad",
		"npm update",
		"npm link",
		"npm rebuild",
		"yarn add react",
		"yarn install",
		"pnpm install",
		"pip install requests",
		"pip uninstall requests",
		"cargo install ripgrep",
		"cargo build --release",
		"cargo add serde",
	}
	for _, cmd := range blocked {
		t.Run(cmd, func(t *testing.T) {
			assertBlocked(t, cmd, strings.Fields(cmd)[0])
		})
	}

	allowed := []string{
		"npm run test",
		"npm list",
		"npm outdated",
		"npm view express version",
		"yarn run lint",
		"pnpm list",
		"pip list",
		"cargo check",
	}
	for _, cmd := range allowed {
		t.Run(cmd, func(t *testing.T) {
			assertAllowed(t, cmd)
		})
	}
}

func TestCheckCommandSafety_BuildTools(t *testing.T) {
	blocked := []string{"make", "make all", "cmake ..", "make install"}
	for _, cmd := range blocked {
		t.Run(cmd, func(t *testing.T) {
			assertBlocked(t, cmd, strings.Fields(cmd)[0])
		})
	}

	allowed := []string{"make -n", "make --dry-run", "make -n all"}
	for _, cmd := range allowed {
		t.Run(cmd, func(t *testing.T) {
			assertAllowed(t, cmd)
		})
	}
}

func TestCheckCommandSafety_InlineInterpreters(t *testing.T) {
	blocked := []struct {
		command string
		want    string
	}{
		{`python -c "print(1)"`, "python"},
		{`python3 -c "import os"`, "python3"},
		{`node -e "console.log(1)"`, "node"},
		{`ruby -e "puts 1"`, "ruby"},
	}
	for _, tc := range blocked {
		t.Run(tc.want, func(t *testing.T) {
			assertBlocked(t, tc.command, tc.want)
		})
	}

	allowed := []string{
		"python script.py",
		"python3 manage.py test",
		"node server.js",
		"ruby app.rb",
		"python --version",
	}
	for _, cmd := range allowed {
		t.Run(cmd, func(t *testing.T) {
			assertAllowed(t, cmd)
		})
	}
}

func TestCheckCommandSafety_Transfers(t *testing.T) {
	t.Run("curl to stdout", func(t *testing.T) {
		assertAllowed(t, "curl https://example.com")
	})
	t.Run("curl silent follow", func(t *testing.T) {
		assertAllowed(t, "curl -sL https://example.com")
	})
	t.Run("curl -o", func(t *testing.T) {
		assertBlocked(t, "curl -o out.html https://example.com", "curl")
	})
	t.Run("curl --output", func(t *testing.T) {
		assertBlocked(t, "curl --output page.html https://example.com", "curl")
	})
	t.Run("curl --output=file", func(t *testing.T) {
		assertBlocked(t, "curl --output=page.html https://example.com", "curl")
	})
	t.Run("wget", func(t *testing.T) {
		assertBlocked(t, "wget https://example.com", "wget")
	})
	t.Run("wget bare", func(t *testing.T) {
		assertBlocked(t, "wget", "wget")
	})
}

func TestCheckCommandSafety_CompoundAndMultiline(t *testing.T) {
	blocked := []struct {
		name    string
		command string
		want    string
	}{
		{"and chain", "ls && rm file.txt", "rm"},
		{"semicolon chain", "ls; rm file.txt", "rm"},
		{"or chain", "ls || rm file.txt", "rm"},
		{"second line", "ls\nrm file.txt", "rm"},
		{"write after read subcommand", "git status && git commit -m done", "git commit"},
		{"leading spaces", "   rm file.txt", "rm"},
	}
	for _, tc := range blocked {
		t.Run(tc.name, func(t *testing.T) {
			assertBlocked(t, tc.command, tc.want)
		})
	}

	allowed := []struct {
		name    string
		command string
	}{
		{"read pipeline", "cat f.txt | grep x"},
		{"safe chain", "ls && pwd"},
		{"comment between commands", "ls\n# comment\npwd"},
		{"long read pipeline", "cat access.log | grep 500 | sort | uniq -c | head"},
	}
	for _, tc := range allowed {
		t.Run(tc.name, func(t *testing.T) {
			assertAllowed(t, tc.command)
		})
	}
}

func TestCheckCommandSafety_Quoting(t *testing.T) {
	allowed := []struct {
		name    string
		command string
	}{
		{"separator inside single quotes", "echo 'a && rm x'"},
		{"rm inside double quotes", `echo "rm file"`},
		{"pipe inside quotes", `echo "a | tee b"`},
		{"semicolon inside quotes", `grep "foo;bar" f.txt`},
		{"unterminated double quote", `echo "unterminated`},
		{"separator past unterminated quote", `echo "foo && rm bar`},
		{"redirect past unterminated quote", `echo 'x > y`},
	}
	for _, tc := range allowed {
		t.Run(tc.name, func(t *testing.T) {
			assertAllowed(t, tc.command)
		})
	}

	t.Run("destructive after closed quote", func(t *testing.T) {
		assertBlocked(t, `echo "done" && rm file.txt`, "rm")
	})
	t.Run("quoted commit message", func(t *testing.T) {
		assertBlocked(t, `git commit -m "fix: a && b"`, "git commit")
	})
}

func TestClassify_FirstBlockedSegmentWins(t *testing.T) {
	v := Classify("rm a.txt && mv b.txt c.txt")
	if !v.Blocked {
		t.Fatal("expected blocked verdict")
	}
	if !strings.Contains(v.Reason, "rm") {
		t.Fatalf("reason %q should name the first offender (rm)", v.Reason)
	}

	v = Classify("ls\ncurl -o f https://x\nrm g")
	if !strings.Contains(v.Reason, "curl") {
		t.Fatalf("reason %q should name the first offending line (curl)", v.Reason)
	}
}

func TestClassify_AllowedVerdictIsEmpty(t *testing.T) {
	v := Classify("git status")
	if v.Blocked || v.Reason != "" {
		t.Fatalf("got %+v, want zero verdict", v)
	}
}

func TestCheckCommandSafety_Deterministic(t *testing.T) {
	inputs := []string{
		"rm -rf /tmp/x",
		"git commit -m msg",
		"ls && pwd",
		"echo hi > f",
		"",
	}
	for _, in := range inputs {
		first := CheckCommandSafety(in)
		for i := 0; i < 50; i++ {
			if got := CheckCommandSafety(in); got != first {
				t.Fatalf("CheckCommandSafety(%q) not deterministic: %q then %q", in, first, got)
			}
		}
	}
}

func TestCheckCommandSafety_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if CheckCommandSafety("rm file.txt") == "" {
					t.Error("rm must always be blocked")
					return
				}
				if CheckCommandSafety("git status") != "" {
					t.Error("git status must always be allowed")
					return
				}
			}
		}()
	}
	wg.Wait()
}
