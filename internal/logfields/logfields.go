package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID       = "job_id"
	KeyJobStatus   = "job_status"
	KeyWorker      = "worker"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyRepo        = "repository"
	KeyFingerprint = "fingerprint"
	KeyEcosystem   = "ecosystem"
	KeyTool        = "tool"
	KeyDescriptor  = "descriptor"
	KeyAttempt     = "attempt"
	KeyOutcome     = "outcome"
	KeyVerdict     = "verdict"
	KeyCacheKey    = "cache_key"
	KeyCacheTier   = "cache_tier"
	KeyPath        = "path"
	KeyURL         = "url"
	KeyCommand     = "command"
	KeyExitCode    = "exit_code"
	KeyError       = "error"
	KeyCategory    = "category"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr          { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr       { return slog.String(KeyJobStatus, s) }
func Worker(w string) slog.Attr          { return slog.String(KeyWorker, w) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Repository(r string) slog.Attr      { return slog.String(KeyRepo, r) }
func Fingerprint(fp string) slog.Attr    { return slog.String(KeyFingerprint, fp) }
func Ecosystem(kind string) slog.Attr    { return slog.String(KeyEcosystem, kind) }
func Tool(name string) slog.Attr         { return slog.String(KeyTool, name) }
func Descriptor(d string) slog.Attr      { return slog.String(KeyDescriptor, d) }
func Attempt(i int) slog.Attr            { return slog.Int(KeyAttempt, i) }
func Outcome(o string) slog.Attr         { return slog.String(KeyOutcome, o) }
func Verdict(v string) slog.Attr         { return slog.String(KeyVerdict, v) }
func CacheKey(k string) slog.Attr        { return slog.String(KeyCacheKey, k) }
func CacheTier(tier string) slog.Attr    { return slog.String(KeyCacheTier, tier) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Command(c string) slog.Attr         { return slog.String(KeyCommand, c) }
func ExitCode(code int) slog.Attr        { return slog.Int(KeyExitCode, code) }
func Category(c string) slog.Attr        { return slog.String(KeyCategory, c) }
func Duration(d time.Duration) slog.Attr { return DurationMS(float64(d.Microseconds()) / 1000) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Short returns the first n characters of a fingerprint for compact log lines.
func Short(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
