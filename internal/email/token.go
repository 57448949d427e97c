package email

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists OAuth2 tokens to a JSON file
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a token store backed by path
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the token file location
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the token file
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", s.path, err)
	}
	return token, nil
}

// Save writes the token file with owner-only permissions
func (s *TokenStore) Save(token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open token file %s: %w", s.path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", s.path, err)
	}
	return nil
}

// persistingTokenSource writes refreshed tokens back to the store
type persistingTokenSource struct {
	src     oauth2.TokenSource
	store   *TokenStore
	mu      sync.Mutex
	current string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.current {
		p.current = token.AccessToken
		if err := p.store.Save(token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// Authorizer acquires a token interactively
type Authorizer struct {
	in  io.Reader
	out io.Writer
}

// NewAuthorizer creates an authorizer reading the code from in
func NewAuthorizer(in io.Reader, out io.Writer) *Authorizer {
	return &Authorizer{in: in, out: out}
}

// Authorize prints the consent URL and exchanges the pasted code for a token
func (a *Authorizer) Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.out, "Go to the following link in your browser then type the authorization code:\n%s\n> ", authURL)

	code, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty authorization code")
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
