package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"JobID", KeyJobID, "123", JobID("123")},
		{"JobStatus", KeyJobStatus, "queued", JobStatus("queued")},
		{"Worker", KeyWorker, "worker-0", Worker("worker-0")},
		{"Stage", KeyStage, "detecting", Stage("detecting")},
		{"Repository", KeyRepo, "acme/widget", Repository("acme/widget")},
		{"Fingerprint", KeyFingerprint, "abc123", Fingerprint("abc123")},
		{"Ecosystem", KeyEcosystem, "go", Ecosystem("go")},
		{"Tool", KeyTool, "cargo", Tool("cargo")},
		{"Descriptor", KeyDescriptor, "go@.", Descriptor("go@.")},
		{"Outcome", KeyOutcome, "build_failed", Outcome("build_failed")},
		{"Verdict", KeyVerdict, "succeeded", Verdict("succeeded")},
		{"CacheKey", KeyCacheKey, "build/a/b/c", CacheKey("build/a/b/c")},
		{"CacheTier", KeyCacheTier, "disk", CacheTier("disk")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"URL", KeyURL, "https://example", URL("https://example")},
		{"Command", KeyCommand, "go test ./...", Command("go test ./...")},
		{"Category", KeyCategory, "tool_missing", Category("tool_missing")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if tc.attr.Value.String() != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %s", tc.name, tc.attrVal, tc.attr.Value.String())
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := Attempt(3); a.Key != KeyAttempt || a.Value.Int64() != 3 {
		t.Fatalf("unexpected attempt attr: %v", a)
	}
	if a := ExitCode(2); a.Key != KeyExitCode || a.Value.Int64() != 2 {
		t.Fatalf("unexpected exit code attr: %v", a)
	}
	if a := Duration(1500 * time.Microsecond); a.Key != KeyDurationMS || a.Value.Float64() != 1.5 {
		t.Fatalf("unexpected duration attr: %v", a)
	}
}

func TestErrorHelper(t *testing.T) {
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("nil error should produce empty value, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("expected boom, got %q", a.Value.String())
	}
}

func TestShort(t *testing.T) {
	if got := Short("abc"); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := Short("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("expected 12 chars, got %s", got)
	}
}
