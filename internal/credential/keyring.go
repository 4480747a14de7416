// Package credential stores the IMAP password in the system keyring so
// it never lives in the config file.
package credential

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "mailsift"

// PasswordKey is the keyring entry holding the IMAP password.
const PasswordKey = "imap_password"

// envPassword overrides the keyring when set; useful for containers
// without a secret service.
const envPassword = "MAILSIFT_IMAP_PASSWORD"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailsift/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsift-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// IMAPPassword resolves the IMAP password: the environment variable
// wins, then the keyring entry.
func IMAPPassword() (string, error) {
	if v := os.Getenv(envPassword); v != "" {
		return v, nil
	}
	return Get(PasswordKey)
}
