// Package access abstracts persistent file-access permissions. Sandboxed
// platforms hand out scoped tokens that must be acquired before a file can be
// opened and may go stale when the file moves; on unsandboxed targets the
// token is just the path itself.
package access

import "errors"

// ErrStale is returned by Resolve when a token no longer points at the file
// it was issued for. The caller should fall back to the recorded path and may
// re-acquire a fresh token.
var ErrStale = errors.New("access: token is stale")

// Token is an opaque persistent-access grant for a single file.
type Token struct {
	Data string
}

// IsZero reports whether the token is empty.
func (t Token) IsZero() bool {
	return t.Data == ""
}

// Provider issues, resolves and releases access tokens.
type Provider interface {
	// Acquire obtains a persistent token for the given path.
	Acquire(path string) (Token, error)

	// Resolve maps a token back to a usable path. A stale token returns the
	// best-known path together with ErrStale.
	Resolve(tok Token) (string, error)

	// Release relinquishes a previously acquired token.
	Release(tok Token)
}

// Passthrough is the Provider for unsandboxed targets: tokens carry the raw
// path and never go stale.
type Passthrough struct{}

// Acquire returns a token wrapping the path itself.
func (Passthrough) Acquire(path string) (Token, error) {
	return Token{Data: path}, nil
}

// Resolve returns the wrapped path.
func (Passthrough) Resolve(tok Token) (string, error) {
	return tok.Data, nil
}

// Release is a no-op.
func (Passthrough) Release(Token) {}
