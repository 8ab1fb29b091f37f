package client

import (
	"net/url"
	"strings"
)

// Reserved query parameters of the cross-origin redirect protocol.
// Sites embedding the client must not repurpose them.
const (
	tokenParam    = "token"
	callbackParam = "callback"
)

// AppendToken appends the session token to rawurl as a `token` query
// parameter, using `&` when the URL already carries a query string and
// `?` otherwise. The rest of the URL is left untouched.
func AppendToken(rawurl string, token string) string {
	sep := "?"
	if strings.Contains(rawurl, "?") {
		sep = "&"
	}
	return rawurl + sep + tokenParam + "=" + url.QueryEscape(token)
}

// BuildLoginURL builds the handoff URL to the login origin, carrying
// the URL to return to as a `callback` parameter. An empty callback
// yields the login URL unmodified.
func BuildLoginURL(loginURL string, callback string) string {
	if callback == "" {
		return loginURL
	}
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + callbackParam + "=" + url.QueryEscape(callback)
}

// extractTokenParam pulls a `token` query parameter out of rawurl. It
// returns the decoded token and the URL with the parameter and its
// separator removed; every other query segment is preserved byte for
// byte, with no re-encoding. found is false when rawurl carries no
// token parameter or cannot be parsed.
func extractTokenParam(rawurl string) (token string, stripped string, found bool) {
	u, err := url.Parse(rawurl)
	if err != nil || u.RawQuery == "" {
		return "", rawurl, false
	}

	var kept []string
	for _, segment := range strings.Split(u.RawQuery, "&") {
		key := segment
		if i := strings.IndexByte(segment, '='); i >= 0 {
			key = segment[:i]
		}
		if key == tokenParam && !found {
			value := ""
			if i := strings.IndexByte(segment, '='); i >= 0 {
				value = segment[i+1:]
			}
			if decoded, err := url.QueryUnescape(value); err == nil {
				token = decoded
			} else {
				token = value
			}
			found = true
			continue
		}
		kept = append(kept, segment)
	}
	if !found {
		return "", rawurl, false
	}

	u.RawQuery = strings.Join(kept, "&")
	return token, u.String(), true
}
