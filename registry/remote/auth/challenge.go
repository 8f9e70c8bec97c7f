package auth

import (
	"strconv"
	"strings"
)

// Scheme identifies the authentication scheme advertised by a
// WWW-Authenticate challenge.
type Scheme byte

// Recognized authentication schemes. Anything else resolves to
// SchemeUnknown, which the client treats as unauthenticated.
const (
	SchemeUnknown Scheme = iota
	SchemeBasic
	SchemeBearer
)

func (s Scheme) String() string {
	switch s {
	case SchemeBasic:
		return "Basic"
	case SchemeBearer:
		return "Bearer"
	default:
		return "Unknown"
	}
}

func schemeFromToken(token string) Scheme {
	switch {
	case strings.EqualFold(token, "Basic"):
		return SchemeBasic
	case strings.EqualFold(token, "Bearer"):
		return SchemeBearer
	default:
		return SchemeUnknown
	}
}

// challengeScanner walks a raw WWW-Authenticate header value left to right,
// peeling off one token or quoted value at a time. It never backtracks: a
// malformed tail simply stops the scan and whatever was parsed so far is
// returned to the caller.
type challengeScanner struct {
	s string
}

// token reports whether r belongs to the `tchar` alphabet from RFC 7230
// §3.2.6: any VCHAR except delimiters.
func isTokenRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	default:
		return strings.ContainsRune("!#$%&'*+-.^_`|~", r)
	}
}

// next consumes the next run of token runes, returning "" once the cursor
// sits on a non-token byte (or the string is exhausted).
func (c *challengeScanner) next() string {
	i := strings.IndexFunc(c.s, func(r rune) bool { return !isTokenRune(r) })
	var tok string
	if i == -1 {
		tok, c.s = c.s, ""
	} else {
		tok, c.s = c.s[:i], c.s[i:]
	}
	return tok
}

// skipBWS drops leading "bad whitespace" (RFC 7230 §3.2.3: OWS = *(SP / HTAB)).
func (c *challengeScanner) skipBWS() {
	i := strings.IndexFunc(c.s, func(r rune) bool { return r != ' ' && r != '\t' })
	if i == -1 {
		c.s = ""
		return
	}
	c.s = c.s[i:]
}

// consumeByte reports whether the cursor sits on b, advancing past it if so.
func (c *challengeScanner) consumeByte(b byte) bool {
	if c.s == "" || c.s[0] != b {
		return false
	}
	c.s = c.s[1:]
	return true
}

// quotedOrToken reads either a double-quoted string or a bare token as the
// value half of an auth-param.
func (c *challengeScanner) quotedOrToken() (string, bool) {
	if c.s == "" {
		return "", false
	}
	if c.s[0] != '"' {
		v := c.next()
		return v, v != ""
	}
	prefix, err := strconv.QuotedPrefix(c.s)
	if err != nil {
		return "", false
	}
	v, err := strconv.Unquote(prefix)
	if err != nil {
		return "", false
	}
	c.s = c.s[len(prefix):]
	return v, true
}

// parseChallenge parses one "WWW-Authenticate" header value and, for Bearer
// challenges, the auth-param list that follows the scheme token.
//
// Grammar, per RFC 7235 §2.1 restricted to the single-parameter-list shape
// Bearer challenges use:
//
//	challenge   = auth-scheme [ 1*SP #auth-param ]
//	auth-scheme = token
//	auth-param  = token BWS "=" BWS ( token / quoted-string )
//
// References:
//   - https://docs.docker.com/registry/spec/auth/token/#how-to-authenticate
//   - https://tools.ietf.org/html/rfc7235#section-2.1
func parseChallenge(header string) (scheme Scheme, params map[string]string) {
	c := &challengeScanner{s: header}
	scheme = schemeFromToken(c.next())
	if scheme != SchemeBearer {
		return scheme, nil
	}

	for {
		c.skipBWS()
		key := c.next()
		if key == "" {
			return scheme, params
		}

		c.skipBWS()
		if !c.consumeByte('=') {
			return scheme, params
		}
		c.skipBWS()

		value, ok := c.quotedOrToken()
		if !ok {
			return scheme, params
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[key] = value

		c.skipBWS()
		if !c.consumeByte(',') {
			return scheme, params
		}
	}
}
