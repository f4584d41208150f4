// internal/invite/invite.go
package invite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// RefParam is the query parameter carrying the inviting user's ID.
const RefParam = "ref"

var ErrNoRef = errors.New("invite link has no ref parameter")

// Link builds an invite URL of the form {origin}/invite?ref={userID}.
func Link(origin, userID string) string {
	return fmt.Sprintf("%s/invite?%s=%s", strings.TrimRight(origin, "/"), RefParam, url.QueryEscape(userID))
}

// SignupLink builds the signup variant, {origin}/signup?ref={userID}.
func SignupLink(origin, userID string) string {
	return fmt.Sprintf("%s/signup?%s=%s", strings.TrimRight(origin, "/"), RefParam, url.QueryEscape(userID))
}

// ParseRef extracts the inviting user's ID from a full invite or signup URL.
func ParseRef(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid invite link: %w", err)
	}
	ref := u.Query().Get(RefParam)
	if ref == "" {
		return "", ErrNoRef
	}
	return ref, nil
}
