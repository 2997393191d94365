package google

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultAccount is used when no account name is given.
const DefaultAccount = "default"

const oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

var accountNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	credMu       sync.RWMutex
	clientID     string
	clientSecret string
)

// SetCredentials configures the OAuth client used for authorization and token
// refresh. Empty values fall back to GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.
func SetCredentials(id, secret string) {
	credMu.Lock()
	defer credMu.Unlock()
	clientID = id
	clientSecret = secret
}

// GetOAuthConfig returns the OAuth2 configuration for the Calendar API.
func GetOAuthConfig() *oauth2.Config {
	credMu.RLock()
	id, secret := clientID, clientSecret
	credMu.RUnlock()
	if id == "" {
		id = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if secret == "" {
		secret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}

	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     google.Endpoint,
		RedirectURL:  oobRedirectURL,
		Scopes:       DefaultOAuthScopes,
	}
}

// HasCredentials reports whether an OAuth client ID is configured.
func HasCredentials() bool {
	return GetOAuthConfig().ClientID != ""
}

// ValidateAccountName checks that account is usable as part of a file name.
func ValidateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNameRe.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// DefaultTokenDir returns the directory tokens are stored in when none is configured.
func DefaultTokenDir() string {
	return filepath.Join(xdg.DataHome, "calmux")
}

func tokenFilePath(dir, account string) string {
	return filepath.Join(dir, "google-"+account+".json")
}

// GetAuthURLForAccount returns the URL the user visits to authorize account.
// The account name travels as the state parameter.
func GetAuthURLForAccount(account string) string {
	if account == "" {
		account = DefaultAccount
	}
	return GetOAuthConfig().AuthCodeURL(account,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// GetAuthenticationErrorMessage explains how to authorize account.
func GetAuthenticationErrorMessage(account string) string {
	return fmt.Sprintf(`Google OAuth token not found for account %q.

To authorize calendar access:
1. Call google_get_auth_url with account=%q and open the URL in a browser
2. Grant calendar access and copy the authorization code
3. Call google_save_auth_code with the code and account=%q`, account, account, account)
}

// ExchangeCode trades an authorization code for a token.
func ExchangeCode(ctx context.Context, authCode string) (*oauth2.Token, error) {
	tok, err := GetOAuthConfig().Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}
