package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// next_index.bin persists an allocator's counter alongside its shards.
// Once an index is handed out it must never be reused, even after its
// entry is later deleted from the keyed store (a spent-down tx_index or a
// re-archived address_index): the counter has to survive independently of
// the store's own key/value contents.
const nextIndexFile = "next_index.bin"

func loadNextIndex(dir string) (uint32, error) {
	data, err := os.ReadFile(filepath.Join(dir, nextIndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read %s: %w", nextIndexFile, err)
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("store: malformed %s (%d bytes)", nextIndexFile, len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

func saveNextIndex(dir string, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	path := filepath.Join(dir, nextIndexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf[:], 0644); err != nil {
		return fmt.Errorf("store: write %s: %w", nextIndexFile, err)
	}
	return os.Rename(tmp, path)
}
