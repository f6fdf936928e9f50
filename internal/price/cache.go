package price

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheFile is the on-disk snapshot. Unknown fields are ignored on load so
// older binaries keep working against newer cache files.
type cacheFile struct {
	Timestamp  int64       `json:"timestamp"`
	Prices     PriceIndex  `json:"prices"`
	CatalogMap BridgeIndex `json:"catalogMap"`
}

// saveCache persists the snapshot with a write-temp-then-rename so readers
// never observe a torn file.
func saveCache(path string, snap *snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file := cacheFile{
		Prices:     snap.prices,
		CatalogMap: snap.bridge,
	}
	if !snap.refreshedAt.IsZero() {
		file.Timestamp = snap.refreshedAt.UnixMilli()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(file); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// loadCache reads a previously persisted snapshot. A missing file returns
// (nil, nil); a corrupt file returns an error and the caller starts empty.
func loadCache(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var file cacheFile
	if err := json.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	snap := &snapshot{
		prices: file.Prices,
		bridge: file.CatalogMap,
	}
	if snap.prices == nil {
		snap.prices = PriceIndex{}
	}
	if snap.bridge == nil {
		snap.bridge = BridgeIndex{}
	}
	if file.Timestamp > 0 {
		snap.refreshedAt = time.UnixMilli(file.Timestamp).UTC()
	}
	return snap, nil
}
