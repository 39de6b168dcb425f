package gateway

import (
	"crypto/md5" //nolint:gosec // RFC 2617 mandates MD5 for Digest auth
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Credentials is the username/password pair set via setUsername:password:
// in spec.md §4.6.
type Credentials struct {
	Username string
	Password string
}

// challenge is a parsed WWW-Authenticate header, either Digest or Basic.
type challenge struct {
	scheme string // "Digest" or "Basic"
	realm  string
	nonce  string
	qop    string
	opaque string
}

// parseChallenge parses a single WWW-Authenticate header value, per RFC
// 2617/7617. Only the first scheme present is honored, matching a
// pragmatic HTTP client rather than a full challenge-negotiation stack.
func parseChallenge(header string) (*challenge, bool) {
	header = strings.TrimSpace(header)
	var scheme string
	switch {
	case strings.HasPrefix(strings.ToLower(header), "digest "):
		scheme = "Digest"
	case strings.HasPrefix(strings.ToLower(header), "basic "):
		scheme = "Basic"
	default:
		return nil, false
	}

	c := &challenge{scheme: scheme}
	params := header[len(scheme)+1:]
	for _, part := range splitParams(params) {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "realm":
			c.realm = val
		case "nonce":
			c.nonce = val
		case "qop":
			c.qop = val
		case "opaque":
			c.opaque = val
		}
	}
	return c, true
}

// splitParams splits a comma-separated challenge parameter list while
// respecting quoted commas (e.g. inside a qop list).
func splitParams(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '"':
			depth ^= 1
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

// buildAuthorization synthesizes the Authorization header value for
// creds answering challenge, against method and requestURI, per spec.md
// §4.6's 401-interception contract.
func buildAuthorization(c *challenge, creds Credentials, method, requestURI string) (string, error) {
	switch c.scheme {
	case "Basic":
		return buildBasicAuthorization(creds), nil
	case "Digest":
		return buildDigestAuthorization(c, creds, method, requestURI)
	default:
		return "", fmt.Errorf("gateway: unsupported auth scheme %q", c.scheme)
	}
}

func buildBasicAuthorization(creds Credentials) string {
	raw := creds.Username + ":" + creds.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// buildDigestAuthorization implements RFC 2617's request-digest
// computation for the "auth" qop (or no qop, falling back to RFC 2069
// compatibility mode).
func buildDigestAuthorization(c *challenge, creds Credentials, method, requestURI string) (string, error) {
	if c.realm == "" || c.nonce == "" {
		return "", fmt.Errorf("gateway: digest challenge missing realm or nonce")
	}

	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", creds.Username, c.realm, creds.Password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, requestURI))

	nc := "00000001"
	cnonce, err := randomHex(8)
	if err != nil {
		return "", err
	}

	var response string
	if strings.Contains(c.qop, "auth") {
		response = md5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, c.nonce, nc, cnonce, "auth", ha2))
	} else {
		response = md5Hex(fmt.Sprintf("%s:%s:%s", ha1, c.nonce, ha2))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		creds.Username, c.realm, c.nonce, requestURI, response)
	if strings.Contains(c.qop, "auth") {
		fmt.Fprintf(&b, `, qop=auth, nc=%s, cnonce="%s"`, nc, cnonce)
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	return b.String(), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
