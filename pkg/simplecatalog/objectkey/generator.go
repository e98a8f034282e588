package objectkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Generator defines the interface for blob name generation strategies.
// Generated names never embed the client-supplied file name; only its
// extension is carried over.
type Generator interface {
	// GenerateKey creates a blob name for storage backends
	GenerateKey(metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	FileName    string // original client file name, used for its extension only
	ContentType string
	Now         time.Time
}

// TimestampGenerator produces flat names of the form
// <unix-millis>-<random hex><ext>, e.g. 1718000000000-9f2c4e1ab03d77e5.png
type TimestampGenerator struct {
	// RandomBytes controls the length of the random token (default: 8)
	RandomBytes int
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{
		RandomBytes: 8,
	}
}

func (g *TimestampGenerator) GenerateKey(metadata *KeyMetadata) string {
	now := time.Now()
	ext := ""
	if metadata != nil {
		if !metadata.Now.IsZero() {
			now = metadata.Now
		}
		ext = Extension(metadata.FileName)
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), randomToken(g.RandomBytes), ext)
}

// ShardedGenerator provides Git-style sharded storage under an originals prefix
// originals/ab/cd1234ef5678...<ext>
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
	}
}

func (g *ShardedGenerator) GenerateKey(metadata *KeyMetadata) string {
	token := randomToken(16)

	shardLength := g.ShardLength
	if shardLength <= 0 || shardLength >= len(token) {
		shardLength = 2
	}

	ext := ""
	if metadata != nil {
		ext = Extension(metadata.FileName)
	}
	return fmt.Sprintf("originals/%s/%s%s", token[:shardLength], token[shardLength:], ext)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(metadata *KeyMetadata) string {
	return g.GenerateFunc(metadata)
}

// Extension returns the lower-cased extension of fileName with every
// character outside [a-z0-9] dropped, or "" when there is none.
func Extension(fileName string) string {
	ext := strings.ToLower(filepath.Ext(sanitizeFilename(fileName)))
	if ext == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('.')
	for _, r := range ext[1:] {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// IsSafeKey reports whether key can address a blob without escaping the
// storage root: relative, slash separated, no empty or dot segments.
func IsSafeKey(key string) bool {
	if key == "" || strings.ContainsAny(key, "\\\x00") || strings.HasPrefix(key, "/") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return path.Clean(key) == key
}

func randomToken(n int) string {
	if n <= 0 {
		n = 8
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("objectkey: random source failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	// Replace problematic characters for filesystem compatibility
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}

// Predefined generators for common use cases

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewTimestampGenerator()
}

// ForLayout returns the generator for a configured layout name: "flat"
// (default) or "sharded".
func ForLayout(layout string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(layout)) {
	case "", "flat":
		return NewTimestampGenerator(), nil
	case "sharded":
		return NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported blob key layout: %s", layout)
	}
}
