package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// tokenPath returns where the session token lives, honoring the token_file
// setting so tests and scripts can relocate it.
func tokenPath() (string, error) {
	if p := viper.GetString("token_file"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keyrunes", "token"), nil
}

// saveToken persists the session token readable only by the current user.
func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

// loadToken reads the stored session token. A missing file is not an error;
// it reads as logged out.
func loadToken() (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// clearToken removes the stored session token. Already logged out is fine.
func clearToken() error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
