package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersionV1 is the current on-disk schema.
const SchemaVersionV1 uint32 = 1

// Manifest is the store's crash-safe commit point. The kv buckets may
// run ahead of it mid-batch; on restart the manifest tip is
// authoritative.
type Manifest struct {
	SchemaVersion uint32 `json:"schema_version"`
	ChainID       uint32 `json:"chain_id"`

	TipHashHex        string `json:"tip_hash"`
	TipHeight         uint64 `json:"tip_height"`
	TipCumulativeWork uint64 `json:"tip_cumulative_work"`
}

func manifestPath(chainDir string) string {
	return filepath.Join(chainDir, "MANIFEST.json")
}

func readManifest(chainDir string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(chainDir))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest json: %w", err)
	}
	return &m, nil
}

// writeManifestAtomic writes MANIFEST.json via rename so a crash can
// never leave a torn commit point.
func writeManifestAtomic(chainDir string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest: nil")
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest json: %w", err)
	}
	raw = append(raw, '\n')

	tmp := fmt.Sprintf("%s.tmp.%d", manifestPath(chainDir), os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, manifestPath(chainDir)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}
