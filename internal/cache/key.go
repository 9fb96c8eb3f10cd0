package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// Kind separates payload families sharing one cache.
type Kind string

const (
	KindBuild    Kind = "build"
	KindAnalysis Kind = "analysis"
)

// Kinds lists every payload kind, which is also every disk subdirectory.
var Kinds = []Kind{KindBuild, KindAnalysis}

// Key identifies one cached payload for one repository revision.
type Key struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Kind        Kind   `json:"kind"`
}

// KeyFor returns the key for ref's current fingerprint.
func KeyFor(ref repository.RepositoryRef, kind Kind) Key {
	return Key{Owner: ref.Owner, Name: ref.Name, Fingerprint: ref.Fingerprint, Kind: kind}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s/%s@%s", k.Kind, k.Owner, k.Name, k.Fingerprint)
}

// Hash is the hex sha256 of String; it names the disk file.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Entry is one stored payload.
type Entry struct {
	Key       Key           `json:"key"`
	Payload   []byte        `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	Size      int64         `json:"size"`
}

// ExpiresAt is the first instant at which the entry is absent.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry is absent at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}
