// Package storage provides the bbolt-backed persistence trees the
// registry, state, and coin managers commit into, following the nested-
// bucket-per-principal layout of spec.md §6 and the directory/manifest
// conventions of the teacher's node/store package.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// ChainDir returns storage/<chain_id_hex> under datadir, mirroring
// node/store/paths.go's ChainDir generalized to this package's root.
func ChainDir(datadir, chainIDHex string) string {
	return filepath.Join(datadir, "storage", chainIDHex)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
