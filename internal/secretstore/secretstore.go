package secretstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrSecretNotFound = errors.New("openpark: secret not found")

// SecretStore reads credentials the process should not keep in its config
// file, such as the SQL store DSN.
type SecretStore interface {
	// Read returns the latest value of the named secret.
	Read(ctx context.Context, secretName string) (string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Resolve returns literal unless secretName is set, in which case the secret
// value wins. Trailing newlines from secret payloads are stripped.
func Resolve(ctx context.Context, s SecretStore, literal, secretName string) (string, error) {
	if secretName == "" {
		return literal, nil
	}
	if s == nil {
		return "", fmt.Errorf("secret %q requested but no secret backend is configured", secretName)
	}

	val, err := s.Read(ctx, secretName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret %q: %w", secretName, err)
	}
	return strings.TrimRight(val, "\r\n"), nil
}
