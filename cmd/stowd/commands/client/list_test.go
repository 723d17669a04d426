package client

import (
	"bytes"
	"strings"
	"testing"

	"github.com/marmos91/stowd/internal/cli/output"
)

func TestFileList_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := output.PrintTable(&buf, FileList{"a.txt", "b.bin"}); err != nil {
		t.Fatalf("PrintTable error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"NAME", "a.txt", "b.bin"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "a.txt") > strings.Index(out, "b.bin") {
		t.Errorf("table output reordered names:\n%s", out)
	}
}

func TestFileList_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := output.PrintJSON(&buf, FileList{"a.txt"}); err != nil {
		t.Fatalf("PrintJSON error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[\n  \"a.txt\"\n]" {
		t.Errorf("PrintJSON = %q", got)
	}
}
