package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"callwatch/internal/token"
)

// writeDump replaces path with the indented JSON form of rec. An empty path
// disables the dump.
func writeDump(path string, rec *token.Record) error {
	if path == "" || rec == nil {
		return nil
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("encode debug dump: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp dump: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dump: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace dump: %w", err)
	}
	return nil
}
