// Package dburl transcodes canonical database URLs into the dialect-specific
// connection strings the matching engine understands.
//
// The engine's connection string grammars cannot escape special characters,
// so a password containing '@' or '}' must be carried through opaquely.
// Parsing works around that with a reversible substitution: every unsafe
// character found in the URL is replaced by a safe character that occurs
// nowhere in it, the sanitized copy is parsed with generic URL rules, and
// each component is translated back individually. The substitution is local
// to a single call and never persisted.
package dburl

import (
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
)

// Safe and unsafe character lists from RFC 1738. Reserved characters
// (";", ",", "/", "?", ":", "@", "=", "&") are never substituted; the
// component split handles them positionally.
var (
	safeCharacterList   = buildSafeCharacterList()
	unsafeCharacterList = []byte{'"', '<', '>', '#', '%', '{', '}', '|', '\\', '^', '~', '[', ']', '`'}
)

var (
	// ErrInsufficientSafeCharacters is returned when a URL contains more
	// distinct unsafe characters than there are unused safe characters to
	// stand in for them.
	ErrInsufficientSafeCharacters = stderrors.New("not enough safe characters to substitute unsafe characters")

	// ErrUnknownScheme is returned when a URL's scheme has no dialect template.
	ErrUnknownScheme = stderrors.New("unknown database scheme")
)

// buildSafeCharacterList returns the substitution candidates in priority
// order: RFC 1738 extra characters first, then ASCII letters.
func buildSafeCharacterList() []byte {
	list := []byte{'$', '-', '_', '.', '+', '!', '*', '(', ')', ',', '"'}
	for c := byte('a'); c <= 'z'; c++ {
		list = append(list, c)
	}
	for c := byte('A'); c <= 'Z'; c++ {
		list = append(list, c)
	}
	return list
}

// Components holds the decomposed canonical database URL. Every field has
// been translated back to its original characters; Schema is the Path with
// leading and trailing separators removed.
type Components struct {
	Scheme   string
	Netloc   string
	Path     string
	Query    string
	Fragment string
	Username string
	Password string
	Hostname string
	Port     string
	Schema   string
}

// Parse decomposes a canonical database URL into components.
//
// Unsafe characters are substituted with unused safe characters before the
// generic parse and restored per component afterwards, so credentials and
// paths keep their original bytes. After reassembly the result is compared
// against the input; a mismatch logs a warning but does not fail the call.
func Parse(rawURL string) (*Components, error) {
	unsafe := unsafeCharactersIn(rawURL)
	safe := safeCharactersAbsentFrom(rawURL)

	if len(unsafe) > len(safe) {
		return nil, errors.Wrap(ErrInsufficientSafeCharacters, errors.ErrorTypeValidation,
			"database URL cannot be made safe for parsing").
			WithDetail("unsafe_characters", string(unsafe)).
			WithDetail("available_safe_characters", string(safe))
	}

	// Build the translation map and the sanitized working copy. Each
	// distinct unsafe character gets the next unused safe character.
	reverse := make(map[byte]byte, len(unsafe))
	working := rawURL
	for i, u := range unsafe {
		s := safe[i]
		reverse[s] = u
		working = strings.ReplaceAll(working, string(u), string(s))
	}

	parts := splitURL(working)
	username, password := parts.userinfo()
	hostname, port := parts.hostinfo()

	c := &Components{
		Scheme:   translate(parts.scheme, reverse),
		Netloc:   translate(parts.netloc, reverse),
		Path:     translate(parts.path, reverse),
		Query:    translate(parts.query, reverse),
		Fragment: translate(parts.fragment, reverse),
		Username: translate(username, reverse),
		Password: translate(password, reverse),
		Hostname: translate(hostname, reverse),
		Port:     translate(port, reverse),
	}
	c.Schema = strings.Trim(c.Path, "/")

	if rebuilt := c.Reconstruct(); rebuilt != rawURL {
		logger.Warn("Original and new database URLs do not match.",
			zap.String("original_url", rawURL),
			zap.String("reconstructed_url", rebuilt))
	}

	return c, nil
}

// Reconstruct reassembles the canonical URL from the parsed components.
// For any URL Parse accepted without warning, Reconstruct returns the
// original input byte for byte.
func (c *Components) Reconstruct() string {
	path := c.Path
	if c.Netloc != "" || strings.HasPrefix(path, "//") {
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		path = "//" + c.Netloc + path
	}

	var b strings.Builder
	if c.Scheme != "" {
		b.WriteString(c.Scheme)
		b.WriteByte(':')
	}
	b.WriteString(path)
	if c.Query != "" {
		b.WriteByte('?')
		b.WriteString(c.Query)
	}
	if c.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(c.Fragment)
	}
	return b.String()
}

// unsafeCharactersIn returns the distinct unsafe characters present in s,
// in order of first appearance.
func unsafeCharactersIn(s string) []byte {
	var result []byte
	seen := make(map[byte]bool, len(unsafeCharacterList))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if seen[c] {
			continue
		}
		for _, u := range unsafeCharacterList {
			if c == u {
				seen[c] = true
				result = append(result, c)
				break
			}
		}
	}
	return result
}

// safeCharactersAbsentFrom returns the safe characters that occur nowhere
// in s, in priority order.
func safeCharactersAbsentFrom(s string) []byte {
	var result []byte
	for _, c := range safeCharacterList {
		if !strings.ContainsRune(s, rune(c)) {
			result = append(result, c)
		}
	}
	return result
}

// translate replaces every key byte in s with its mapped value. Keys were
// chosen absent from the original URL, so replacement order cannot matter.
func translate(s string, mapping map[byte]byte) string {
	if len(mapping) == 0 || s == "" {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if u, ok := mapping[c]; ok {
			b[i] = u
		}
	}
	return string(b)
}

// urlParts is the result of a generic split of a sanitized URL following
// the scheme://netloc/path?query#fragment grammar.
type urlParts struct {
	scheme   string
	netloc   string
	path     string
	query    string
	fragment string
}

// splitURL splits a sanitized URL into its top-level parts. The netloc runs
// from "//" to the next "/", "?", or "#"; the fragment starts at the first
// "#" after the netloc; the query at the first "?" before the fragment.
func splitURL(rawURL string) urlParts {
	var p urlParts
	rest := rawURL

	if i := strings.IndexByte(rest, ':'); i > 0 && isValidScheme(rest[:i]) {
		p.scheme = rest[:i]
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		end := strings.IndexAny(rest[2:], "/?#")
		if end < 0 {
			end = len(rest) - 2
		}
		p.netloc = rest[2 : 2+end]
		rest = rest[2+end:]
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		p.fragment = rest[i+1:]
		rest = rest[:i]
	}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		p.query = rest[i+1:]
		rest = rest[:i]
	}

	p.path = rest
	return p
}

// isValidScheme reports whether s is a well-formed URL scheme: a letter
// followed by letters, digits, "+", "-", or ".".
func isValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// userinfo returns the username and password from the netloc. The userinfo
// section ends at the last "@" so passwords may contain "@"; the username
// ends at the first ":" so passwords may contain ":".
func (p urlParts) userinfo() (username, password string) {
	at := strings.LastIndexByte(p.netloc, '@')
	if at < 0 {
		return "", ""
	}
	userinfo := p.netloc[:at]
	if i := strings.IndexByte(userinfo, ':'); i >= 0 {
		return userinfo[:i], userinfo[i+1:]
	}
	return userinfo, ""
}

// hostinfo returns the hostname and port from the netloc.
func (p urlParts) hostinfo() (hostname, port string) {
	hostport := p.netloc
	if at := strings.LastIndexByte(hostport, '@'); at >= 0 {
		hostport = hostport[at+1:]
	}
	if i := strings.IndexByte(hostport, ':'); i >= 0 {
		return hostport[:i], hostport[i+1:]
	}
	return hostport, ""
}
