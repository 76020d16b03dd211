package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/quill/internal/config"
	"github.com/hpungsan/quill/internal/logging"
)

// newTestEnv returns an environment over a temporary base directory with no
// piped stdin and no write prompter.
func newTestEnv(t *testing.T) *cliEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.PersistDebounceMS = 60000
	return &cliEnv{
		baseDir: t.TempDir(),
		cfg:     cfg,
		log:     logging.Discard(),
		stdin:   func() (string, bool, error) { return "", false, nil },
	}
}

// pipe makes the next commands see content on stdin.
func (e *cliEnv) pipe(content string) {
	e.stdin = func() (string, bool, error) { return content, true, nil }
}

// runCLI runs the app and returns what it wrote to stdout.
func runCLI(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	app := newCLIApp(env)
	runErr := app.Run(append([]string{"quill"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

func mustRun(t *testing.T, env *cliEnv, args ...string) map[string]any {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("%v: invalid JSON %q: %v", args, out, err)
	}
	return m
}

func TestCLINewAndList_PersistAcrossRuns(t *testing.T) {
	env := newTestEnv(t)

	env.pipe("# hi")
	doc := mustRun(t, env, "new", "--name=notes.md")
	if doc["language"] != "markdown" {
		t.Errorf("language = %v, want markdown", doc["language"])
	}

	env.pipe("")
	list := mustRun(t, env, "list")
	items := list["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if list["active_id"] != doc["id"] {
		t.Errorf("active_id = %v, want %v", list["active_id"], doc["id"])
	}

	out, err := runCLI(t, env, "show", "--raw")
	if err != nil {
		t.Fatal(err)
	}
	if out != "# hi" {
		t.Errorf("show --raw = %q, want # hi", out)
	}
}

func TestCLIEditAndSave(t *testing.T) {
	env := newTestEnv(t)
	target := filepath.Join(t.TempDir(), "main.go")

	if _, err := runCLI(t, env, "edit"); err == nil {
		t.Fatal("edit without stdin should fail")
	}

	env.pipe("package main\n")
	doc := mustRun(t, env, "edit")
	if doc["dirty"] != true {
		t.Error("edited document should be dirty")
	}

	out := mustRun(t, env, "save", "--path="+target)
	if out["status"] != "saved" {
		t.Fatalf("status = %v, want saved", out["status"])
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "package main\n" {
		t.Errorf("file = %q", b)
	}

	// A later run restores the binding but must ask before writing
	env.pipe("package main\n\nfunc main() {}\n")
	mustRun(t, env, "edit")
	_, err = runCLI(t, env, "save")
	if err == nil || !strings.Contains(err.Error(), "NEEDS_PERMISSION") {
		t.Fatalf("save without permission = %v, want NEEDS_PERMISSION", err)
	}

	out = mustRun(t, env, "--yes", "save")
	if out["status"] != "saved" {
		t.Fatalf("status = %v, want saved", out["status"])
	}
	b, _ = os.ReadFile(target)
	if string(b) != "package main\n\nfunc main() {}\n" {
		t.Errorf("file = %q", b)
	}
}

func TestCLIActivateUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := runCLI(t, env, "activate", "missing")
	if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if _, err := runCLI(t, env, "activate"); err == nil {
		t.Fatal("activate without an ID should fail")
	}
}

func TestCLICompareModeAndDiff(t *testing.T) {
	env := newTestEnv(t)

	env.pipe("a\nb\nc")
	mustRun(t, env, "edit")
	env.pipe("a\nx\nc")
	view := mustRun(t, env, "compare", "set", "--name=old.txt")
	if view["compare"].(map[string]any)["name"] != "old.txt" {
		t.Errorf("compare = %v", view["compare"])
	}

	env.pipe("")
	view = mustRun(t, env, "mode", "diff")
	if view["state"].(map[string]any)["mode"] != "diff" {
		t.Errorf("state = %v", view["state"])
	}

	_, err := runCLI(t, env, "mode", "--toggle-layout", "diff")
	if err == nil || !strings.Contains(err.Error(), "INVALID_TRANSITION") {
		t.Fatalf("toggle in diff = %v, want INVALID_TRANSITION", err)
	}

	// The compare buffer belongs to one run; --against loads it for this one
	old := filepath.Join(t.TempDir(), "old.txt")
	if err := os.WriteFile(old, []byte("a\nx\nc"), 0644); err != nil {
		t.Fatal(err)
	}
	diff := mustRun(t, env, "diff", "--against="+old)
	if hunks := diff["hunks"].([]any); len(hunks) != 1 {
		t.Errorf("hunks = %d, want 1", len(hunks))
	}
	if diff["modified"] != "old.txt" {
		t.Errorf("modified = %v", diff["modified"])
	}

	view = mustRun(t, env, "mode", "--lock", "--policy=offset", "split")
	state := view["state"].(map[string]any)
	if state["scroll_lock"] != true || state["scroll_lock_policy"] != "offset" {
		t.Errorf("state = %v", state)
	}

	// Layout and lock are preferences and survive the run
	view = mustRun(t, env, "mode")
	if view["state"].(map[string]any)["layout"] != "split" {
		t.Errorf("state after reopen = %v", view["state"])
	}

	view = mustRun(t, env, "compare", "clear")
	if view["compare"].(map[string]any)["empty"] != true {
		t.Error("expected empty compare buffer")
	}
}

func TestCLISettings(t *testing.T) {
	env := newTestEnv(t)

	out := mustRun(t, env, "settings", "set", "fontSize", "18")
	if out["fontSize"] != float64(18) {
		t.Errorf("fontSize = %v", out["fontSize"])
	}
	out = mustRun(t, env, "settings", "set", "theme", "light")
	if out["theme"] != "light" {
		t.Errorf("theme = %v", out["theme"])
	}

	out = mustRun(t, env, "settings", "get", "fontSize")
	if out["fontSize"] != float64(18) {
		t.Errorf("fontSize after reopen = %v", out["fontSize"])
	}

	all := mustRun(t, env, "settings", "get")
	if all["theme"] != "light" {
		t.Errorf("settings = %v", all)
	}

	if _, err := runCLI(t, env, "settings", "set", "fontSize", "900"); err == nil {
		t.Error("out of range font size should fail")
	}
}

func TestCLIPlugins(t *testing.T) {
	env := newTestEnv(t)

	env.pipe(`editor.register_action("shout", "Shout", "", function()
  editor.set_active_text(string.upper(editor.active_text()))
end)`)
	added := mustRun(t, env, "plugin", "add", "--name=shout")
	if added["loaded"] != true {
		t.Fatalf("plugin = %v, want loaded", added)
	}

	env.pipe("quiet")
	mustRun(t, env, "edit")

	env.pipe("")
	mustRun(t, env, "plugin", "run", "shout")
	out, err := runCLI(t, env, "show", "--raw")
	if err != nil {
		t.Fatal(err)
	}
	if out != "QUIET" {
		t.Errorf("content = %q, want QUIET", out)
	}

	mustRun(t, env, "plugin", "disable", added["id"].(string))
	if _, err := runCLI(t, env, "plugin", "run", "shout"); err == nil {
		t.Error("disabled plugin action should not run")
	}

	if _, err := runCLI(t, env, "plugin", "add", "--name=empty"); err == nil {
		t.Error("plugin add without code should fail")
	}
}

func TestSettingValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "18", want: "18"},
		{in: "true", want: "true"},
		{in: `"dark"`, want: `"dark"`},
		{in: "dark", want: `"dark"`},
		{in: "split view", want: `"split view"`},
	}
	for _, tt := range tests {
		if got := string(settingValue(tt.in)); got != tt.want {
			t.Errorf("settingValue(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTerminalPrompter(t *testing.T) {
	var prompt bytes.Buffer
	p := terminalPrompter(strings.NewReader("y\nno\n"), &prompt)

	ok, err := p.ConfirmWrite(context.Background(), "a.txt")
	if err != nil || !ok {
		t.Errorf("first answer = %v, %v; want true", ok, err)
	}
	ok, err = p.ConfirmWrite(context.Background(), "b.txt")
	if err != nil || ok {
		t.Errorf("second answer = %v, %v; want false", ok, err)
	}
	if !strings.Contains(prompt.String(), "a.txt") {
		t.Errorf("prompt = %q", prompt.String())
	}
}

func TestCLISaveDownloadName(t *testing.T) {
	env := newTestEnv(t)
	env.namePrompt = terminalNamePrompter(strings.NewReader(""), io.Discard)
	downloads := filepath.Join(env.baseDir, "downloads")

	env.pipe("text")
	mustRun(t, env, "new", "--name=draft.txt")

	// End of input at the name prompt declines the download
	env.pipe("")
	_, err := runCLI(t, env, "save")
	if err == nil || !strings.Contains(err.Error(), "CANCELED") {
		t.Fatalf("save with declined name = %v, want CANCELED", err)
	}
	if entries, _ := os.ReadDir(downloads); len(entries) != 0 {
		t.Errorf("downloads = %d entries, want none", len(entries))
	}

	out := mustRun(t, env, "save", "--filename=final.txt")
	if out["status"] != "downloaded" {
		t.Fatalf("status = %v, want downloaded", out["status"])
	}
	b, err := os.ReadFile(filepath.Join(downloads, "final.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "text" {
		t.Errorf("file = %q, want text", b)
	}
}

func TestCLIPluginRunSelection(t *testing.T) {
	env := newTestEnv(t)

	env.pipe(`editor.register_action("wrap", "Wrap", "", function()
  editor.replace_selection("<" .. editor.selection() .. ">")
end)`)
	mustRun(t, env, "plugin", "add", "--name=wrap")

	env.pipe("hello world")
	mustRun(t, env, "edit")

	env.pipe("")
	mustRun(t, env, "plugin", "run", "--selection=6:11", "wrap")
	out, err := runCLI(t, env, "show", "--raw")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello <world>" {
		t.Errorf("content = %q, want hello <world>", out)
	}

	if _, err := runCLI(t, env, "plugin", "run", "--selection=a:b", "wrap"); err == nil {
		t.Error("malformed selection should fail")
	}
}

func TestParseSelection(t *testing.T) {
	in, err := parseSelection("3:7")
	if err != nil {
		t.Fatal(err)
	}
	if *in.SelectionStart != 3 || *in.SelectionEnd != 7 {
		t.Errorf("selection = %d:%d, want 3:7", *in.SelectionStart, *in.SelectionEnd)
	}

	in, err = parseSelection("4")
	if err != nil {
		t.Fatal(err)
	}
	if *in.SelectionStart != 4 || in.SelectionEnd != nil {
		t.Errorf("caret = %v, want start 4 and no end", in)
	}

	if _, err := parseSelection("x:1"); err == nil {
		t.Error("non-numeric start should fail")
	}
}

func TestTerminalNamePrompter(t *testing.T) {
	var prompt bytes.Buffer
	p := terminalNamePrompter(strings.NewReader("\nrenamed.md\n"), &prompt)

	name, err := p.PromptFilename(context.Background(), "notes.md")
	if err != nil || name != "notes.md" {
		t.Errorf("empty answer = %q, %v; want the suggestion", name, err)
	}
	name, err = p.PromptFilename(context.Background(), "notes.md")
	if err != nil || name != "renamed.md" {
		t.Errorf("typed answer = %q, %v; want renamed.md", name, err)
	}
	name, err = p.PromptFilename(context.Background(), "notes.md")
	if err != nil || name != "" {
		t.Errorf("end of input = %q, %v; want declined", name, err)
	}
	if !strings.Contains(prompt.String(), "[notes.md]") {
		t.Errorf("prompt = %q", prompt.String())
	}
}
