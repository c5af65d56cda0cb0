package auth

import (
	"crypto/rand"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const secretLength = 32

// LoadOrCreateSecret returns the HMAC key used to sign API tokens. On first
// start the key is generated and written to path with owner-only
// permissions; afterwards the same key is read back, so tokens survive
// restarts.
func LoadOrCreateSecret(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != secretLength {
			return nil, errors.Errorf("secret file %s holds %d bytes, want %d", path, len(key), secretLength)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.WithStack(err)
	}

	key = make([]byte, secretLength)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, errors.WithStack(err)
	}

	return key, nil
}
