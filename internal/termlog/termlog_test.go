package termlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMissingFileDiscards(t *testing.T) {
	tl, err := Open(filepath.Join(t.TempDir(), "nope", "termination-log"))
	if err != nil {
		t.Fatal(err)
	}
	if tl.Enabled() {
		t.Fatal("missing file should disable the log")
	}
	tl.Write("SHUTDOWN - OK")
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termination-log")
	if err := os.WriteFile(path, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tl.Write("SHUTDOWN - NOT OK", "reason", "job failed")
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	tl.Write("after close")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 || lines[0] != "previous" {
		t.Fatalf("file = %q", b)
	}
	for _, want := range []string{`msg="SHUTDOWN - NOT OK"`, `reason="job failed"`, "source=", "termlog_test.go:"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("line %q missing %s", lines[1], want)
		}
	}
	if strings.Contains(lines[1], "level=") || strings.Contains(lines[1], "time=") {
		t.Errorf("line %q carries time or level", lines[1])
	}
}

func TestNilLog(t *testing.T) {
	var tl *Log
	tl.Write("ignored")
	if tl.Enabled() {
		t.Fatal("nil log enabled")
	}
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
}
