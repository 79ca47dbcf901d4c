package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"mira/internal/errors"
)

// Store resolves the bearer token for one mail account. Tokens are secrets:
// implementations must never log them and callers must never persist them in
// audit records.
type Store interface {
	Token(ctx context.Context, accountID string) (string, error)
}

// FileStore keeps tokens in a JSON file readable only by the owner. The file
// is re-read on every lookup so out-of-band rotation takes effect without a
// restart.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore points at the keystore file. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Token returns the stored token for the account.
func (s *FileStore) Token(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return "", err
	}
	token, ok := tokens[accountID]
	if !ok || token == "" {
		return "", fmt.Errorf("account %s: %w", accountID, errors.ErrNotFound)
	}
	return token, nil
}

// SetToken writes or replaces the token for the account, creating the
// keystore with owner-only permissions when missing.
func (s *FileStore) SetToken(accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return err
	}
	tokens[accountID] = token

	raw, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	tokens := map[string]string{}
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("parse keystore %s: %w", s.path, err)
	}
	return tokens, nil
}

// EnvStore resolves tokens from the environment, loading a .env file first
// when one exists. The variable name for account "ub-gmail" is
// MIRA_TOKEN_UB_GMAIL.
type EnvStore struct{}

// NewEnvStore loads the optional .env file beside the working directory.
// A missing file is not an error.
func NewEnvStore(dotenvPath string) *EnvStore {
	if dotenvPath != "" {
		_ = godotenv.Load(dotenvPath)
	} else {
		_ = godotenv.Load()
	}
	return &EnvStore{}
}

// Token reads the account's environment variable.
func (s *EnvStore) Token(_ context.Context, accountID string) (string, error) {
	token := os.Getenv(EnvVarName(accountID))
	if token == "" {
		return "", fmt.Errorf("account %s: %w", accountID, errors.ErrNotFound)
	}
	return token, nil
}

// EnvVarName maps an account id onto its environment variable.
func EnvVarName(accountID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, accountID)
	return "MIRA_TOKEN_" + mapped
}

// Chain queries stores in order and returns the first token found. The
// keystore file is primary; the environment is the fallback.
type Chain []Store

// Token walks the chain.
func (c Chain) Token(ctx context.Context, accountID string) (string, error) {
	var lastErr error
	for _, store := range c {
		token, err := store.Token(ctx, accountID)
		if err == nil && token != "" {
			return token, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("account %s: %w", accountID, errors.ErrNotFound)
	}
	return "", lastErr
}
