package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateKeyFile returns the key stored at path, creating and
// persisting a fresh one with owner-only permissions on first use.
// Creation uses O_EXCL so two processes racing on first use cannot
// clobber each other: the loser of the race re-reads the winner's key.
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	if key, err := readKeyFile(path); err == nil {
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Another caller won the race; use its key.
			return readKeyFile(path)
		}
		return nil, fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(hex.EncodeToString(key)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := KeyFromHex(string(data))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}

// MaterializeKey writes decrypted private key material to a 0600 temp
// file for the duration of an SSH session. The returned cleanup func
// removes the file and must be deferred on every exit path.
func MaterializeKey(privateKey []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "backhaul-sshkey-*")
	if err != nil {
		return "", nil, fmt.Errorf("create key file: %w", err)
	}
	name := f.Name()
	cleanup = func() { os.Remove(name) }

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("restrict key file: %w", err)
	}
	if _, err := f.Write(privateKey); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close key file: %w", err)
	}
	return name, cleanup, nil
}
