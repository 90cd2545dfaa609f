package tool

import (
	"strings"
	"testing"
)

func TestTruncateMap_NoTruncation(t *testing.T) {
	in := map[string]any{"msg": "hello"}
	out, info := TruncateMap(in, TruncationPolicy{MaxTokens: 100})
	if info.Truncated {
		t.Fatal("expected not truncated")
	}
	if out["msg"] != "hello" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestTruncateString_KeepsHeadAndTail(t *testing.T) {
	s := strings.Repeat("a", 100) + strings.Repeat("z", 100)
	out, removed := truncateString(s, TruncationPolicy{MaxBytes: 40})
	if removed == 0 {
		t.Fatal("expected bytes to be removed")
	}
	if !strings.HasPrefix(out, "a") || !strings.HasSuffix(out, "z") {
		t.Fatalf("expected head and tail preserved, got %q", out)
	}
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected removal marker, got %q", out)
	}
}

func TestTruncateMap_WithMeta(t *testing.T) {
	long := strings.Repeat("abcdef", 3000)
	in := map[string]any{"stdout": long}
	out, info := TruncateMap(in, TruncationPolicy{MaxTokens: 100})
	if !info.Truncated {
		t.Fatal("expected truncated")
	}
	out = AddTruncationMeta(out, info)
	meta, ok := out["_tool_truncation"].(map[string]any)
	if !ok {
		t.Fatalf("expected truncation meta, got: %#v", out["_tool_truncation"])
	}
	if meta["truncated"] != true {
		t.Fatalf("expected truncated=true, got: %#v", meta["truncated"])
	}
	stdout, _ := out["stdout"].(string)
	if stdout == "" || !strings.Contains(stdout, "truncated") {
		t.Fatalf("expected truncated stdout marker, got: %q", stdout)
	}
}
