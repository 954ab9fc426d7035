package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

//go:embed default_pack.json
var defaultPackBytes []byte

// EmbeddedSource is the source label reported when no pack path is configured.
const EmbeddedSource = "embedded:default_pack.json"

// Snapshot is an immutable loaded pack plus its canonical digest. Safe for
// concurrent reads without synchronization after load.
type Snapshot struct {
	pack   Pack
	sha256 string
	source string
}

// Pack returns the loaded pack value.
func (s *Snapshot) Pack() Pack { return s.pack }

// SHA256 returns the canonical-JSON digest of the pack.
func (s *Snapshot) SHA256() string { return s.sha256 }

// Source returns a human-readable label of where the pack was loaded from.
func (s *Snapshot) Source() string { return s.source }

// Load reads the pack from path, or the embedded default when path is empty.
// Validation or decode failures are returned to the caller and are fatal at
// startup.
func Load(path string, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	raw := defaultPackBytes
	source := EmbeddedSource
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy pack: %w", err)
		}
		raw = data
		source = path
	}

	var pack Pack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("parse policy pack %s: %w", source, err)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}

	digest, err := SHA256Hex(pack)
	if err != nil {
		return nil, err
	}

	logger.Info("policy pack loaded",
		zap.String("source", source),
		zap.String("version", pack.Version),
		zap.Int("policies", len(pack.Policies)),
		zap.String("sha256", digest))

	return &Snapshot{pack: pack, sha256: digest, source: source}, nil
}
