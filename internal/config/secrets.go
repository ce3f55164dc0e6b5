package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

const keyringPrefix = "keyring:"

// SecretLookup returns the secret stored for service and user.
type SecretLookup func(service, user string) (string, error)

// KeyringLookup reads secrets from the OS keyring.
func KeyringLookup(service, user string) (string, error) {
	secret, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no keyring entry for %s/%s", service, user)
	}
	return secret, err
}

// resolve expands ${ENV_VAR} references in v and then, when the result has
// the form keyring:<service>/<user>, replaces it with the keyring entry.
func resolve(v string, lookup SecretLookup) (string, error) {
	v = os.ExpandEnv(v)
	ref, ok := strings.CutPrefix(v, keyringPrefix)
	if !ok {
		return v, nil
	}
	i := strings.LastIndex(ref, "/")
	if i <= 0 || i == len(ref)-1 {
		return "", fmt.Errorf("keyring reference %q must look like keyring:<service>/<user>", v)
	}
	if lookup == nil {
		return "", fmt.Errorf("keyring reference %q without a secret lookup", v)
	}
	secret, err := lookup(ref[:i], ref[i+1:])
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", v, err)
	}
	return secret, nil
}

// LoadEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
