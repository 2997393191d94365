package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no token is stored for an account.
var ErrNoToken = errors.New("no Google OAuth token found")

// TokenProvider is an interface for providing OAuth tokens for Google APIs.
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(account string) bool
}

// FileTokenProvider stores one JSON token file per account in a directory.
type FileTokenProvider struct {
	mu  sync.Mutex
	dir string
}

var _ TokenProvider = (*FileTokenProvider)(nil)

// NewFileTokenProvider returns a provider rooted at dir. An empty dir means
// DefaultTokenDir.
func NewFileTokenProvider(dir string) *FileTokenProvider {
	if dir == "" {
		dir = DefaultTokenDir()
	}
	return &FileTokenProvider{dir: dir}
}

// Dir returns the token directory.
func (p *FileTokenProvider) Dir() string {
	return p.dir
}

// GetTokenForAccount loads the stored token. An expired token is refreshed
// and the refreshed token written back.
func (p *FileTokenProvider) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	if err := ValidateAccountName(account); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.load(account)
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("token for account %s expired and cannot be refreshed", account)
	}

	fresh, err := GetOAuthConfig().TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for account %s: %w", account, err)
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := p.write(account, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// HasTokenForAccount checks if a token file exists for the specified account.
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	if ValidateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(tokenFilePath(p.dir, account))
	return err == nil
}

// SaveToken stores tok for account.
func (p *FileTokenProvider) SaveToken(account string, tok *oauth2.Token) error {
	if err := ValidateAccountName(account); err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("token cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(account, tok)
}

// SaveAuthCode exchanges authCode and stores the resulting token for account.
func (p *FileTokenProvider) SaveAuthCode(ctx context.Context, account, authCode string) error {
	if err := ValidateAccountName(account); err != nil {
		return err
	}
	tok, err := ExchangeCode(ctx, authCode)
	if err != nil {
		return err
	}
	return p.SaveToken(account, tok)
}

// ListAccounts returns the accounts that have a stored token, sorted by name.
func (p *FileTokenProvider) ListAccounts() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory: %w", err)
	}

	var accounts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "google-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		account := strings.TrimSuffix(strings.TrimPrefix(name, "google-"), ".json")
		if ValidateAccountName(account) == nil {
			accounts = append(accounts, account)
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (p *FileTokenProvider) load(account string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFilePath(p.dir, account))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file for account %s: %w", account, err)
	}
	return &tok, nil
}

func (p *FileTokenProvider) write(account string, tok *oauth2.Token) error {
	if err := os.MkdirAll(p.dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(tokenFilePath(p.dir, account), data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
