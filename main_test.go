package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI 以文件存储执行一条命令，返回标准输出。
func runCLI(t *testing.T, state string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--backend", "file", "--db", state, "--log-level", "error"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunAddEditShow(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")
	if _, err := runCLI(t, state, "add", "single", "--title", "关于我", "--content", "hello"); err != nil {
		t.Fatalf("add single: %v", err)
	}
	out, err := runCLI(t, state, "add", "dual", "--title", "爱好")
	if err != nil || !strings.Contains(out, "added card #2") {
		t.Fatalf("add dual: %q %v", out, err)
	}
	if _, err := runCLI(t, state, "edit", "2", "--align", "center", "--color", "#112233"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := runCLI(t, state, "set", "nickname", "小林"); err != nil {
		t.Fatalf("set nickname: %v", err)
	}
	if _, err := runCLI(t, state, "set", "shadow", "false"); err != nil {
		t.Fatalf("set shadow: %v", err)
	}
	if _, err := runCLI(t, state, "set", "font-size", "18px"); err != nil {
		t.Fatalf("set font-size: %v", err)
	}

	out, err = runCLI(t, state, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"nickname: 小林", "shadow=false", "font=sans/18", `#1 single "关于我"`, `#2 dual "爱好" align=center`} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(state)
	if err != nil {
		t.Fatalf("state file not written: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	if doc["cardIdCounter"] != float64(2) {
		t.Fatalf("cardIdCounter = %v", doc["cardIdCounter"])
	}
}

func TestRunRemoveAndMove(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")
	for i := 0; i < 3; i++ {
		if _, err := runCLI(t, state, "add", "dual"); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := runCLI(t, state, "rm", "1"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := runCLI(t, state, "mv", "3", "0"); err != nil {
		t.Fatalf("mv: %v", err)
	}
	out, _ := runCLI(t, state, "show")
	if strings.Index(out, "#3 dual") > strings.Index(out, "#2 dual") || strings.Contains(out, "#1 dual") {
		t.Fatalf("unexpected order:\n%s", out)
	}
	if _, err := runCLI(t, state, "rm", "1"); err == nil {
		t.Fatalf("expected error removing a missing card")
	}
	if _, err := runCLI(t, state, "rm", "abc"); err == nil {
		t.Fatalf("expected error for invalid id")
	}
}

func TestRunExportImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dst := filepath.Join(dir, "b.json")
	if _, err := runCLI(t, src, "add", "single", "--title", "t1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, src, "edit", "1", "--overlay-opacity", "0.4"); err != nil {
		t.Fatalf("edit overlay: %v", err)
	}
	exportPath := filepath.Join(dir, "config.json")
	if _, err := runCLI(t, src, "export", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	exported, _ := os.ReadFile(exportPath)
	if !strings.Contains(string(exported), `"overlayOpacity": 0.4`) {
		t.Fatalf("export schema must include overlay fields:\n%s", exported)
	}
	if _, err := runCLI(t, dst, "import", exportPath); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, _ := runCLI(t, dst, "show")
	if !strings.Contains(out, `#1 single "t1"`) {
		t.Fatalf("import did not restore cards:\n%s", out)
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte(`{"cards":[]}`), 0o644)
	if _, err := runCLI(t, dst, "import", bad); err == nil {
		t.Fatalf("expected error for malformed document")
	}
	out, _ = runCLI(t, dst, "show")
	if !strings.Contains(out, `#1 single "t1"`) {
		t.Fatalf("failed import must keep state:\n%s", out)
	}
}

func TestRunRenderWritesPNG(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")
	if _, err := runCLI(t, state, "add", "dual", "--title", "A", "--content", "some text"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, state, "add", "dual", "--title", "B"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out := filepath.Join(dir, "out", "card.png")
	debug := filepath.Join(dir, "out", "layout.json")
	if _, err := runCLI(t, state, "render", "--out", out, "--debug", debug, "--scale", "1"); err != nil {
		t.Fatalf("render: %v", err)
	}
	png, err := os.ReadFile(out)
	if err != nil || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("render must write a PNG: %v", err)
	}
	raw, err := os.ReadFile(debug)
	if err != nil {
		t.Fatalf("debug JSON not written: %v", err)
	}
	var res struct {
		Width float64 `json:"width"`
		Dual  struct {
			Masonry struct {
				ColumnWidth float64 `json:"columnWidth"`
			} `json:"masonry"`
		} `json:"dual"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode debug JSON: %v", err)
	}
	if res.Width != 600 || res.Dual.Masonry.ColumnWidth != (560-15)/2.0 {
		t.Fatalf("export must compose at 600px: %+v", res)
	}
}

func TestRunLayoutUsesViewportWidth(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")
	if _, err := runCLI(t, state, "add", "dual"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCLI(t, state, "layout", "--width", "670")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if !strings.Contains(out, `"columnWidth": 307.5`) {
		t.Fatalf("unexpected layout output:\n%s", out)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")
	cases := [][]string{
		{"set", "mood", "happy"},
		{"set", "line-height", "tall"},
		{"set", "font-size", "big"},
		{"set", "color", "blue"},
		{"add", "triple"},
		{"nope"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, state, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
	if _, err := runCLI(t, state, "add", "dual"); err != nil {
		t.Fatalf("add: %v", err)
	}
	narrow := filepath.Join(t.TempDir(), "narrow.png")
	if _, err := runCLI(t, state, "render", "--out", narrow, "--width", "30", "--scale", "1"); err == nil {
		t.Fatalf("expected error rendering dual cards at 30px")
	}
	if _, err := os.Stat(narrow); !os.IsNotExist(err) {
		t.Fatalf("failed render must not write a file: %v", err)
	}

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"--backend", "redis", "show"}, nil, &stderr)
	if err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}
