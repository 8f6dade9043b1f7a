package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile atomically writes encoded state to path. The state is encoded
// into a temporary file in the destination directory which is then renamed
// over the destination, so readers never observe a partially written file.
func WriteFile(path string, codec Codec, state any) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	encodeErr := codec.Encode(tmp, state)

	closeErr := tmp.Close()
	if encodeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("encode state: %w", encodeErr)
	}

	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close temp state file: %w", closeErr)
	}

	renameErr := os.Rename(tmp.Name(), path)
	if renameErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace state file: %w", renameErr)
	}

	return nil
}

// ReadFile decodes state from path. The state parameter must be a pointer
// to the target struct. A missing file surfaces as an error wrapping
// fs.ErrNotExist.
func ReadFile(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
