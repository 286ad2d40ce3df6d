package api

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/atmx/urgency-engine/internal/apperr"
)

// AdminAuth checks admin tokens against bcrypt hashes. A token is read from
// "Authorization: Bearer <token>" or the X-API-Key header.
type AdminAuth struct {
	hashes [][]byte
}

// NewAdminAuth creates a verifier. With no hashes every privileged call is
// rejected.
func NewAdminAuth(hashes []string) *AdminAuth {
	a := &AdminAuth{}
	for _, h := range hashes {
		a.hashes = append(a.hashes, []byte(h))
	}
	return a
}

// HashToken returns a bcrypt hash suitable for auth.admin_token_hashes.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify returns an apperr.ErrAuthentication error unless r carries a
// valid admin token.
func (a *AdminAuth) Verify(r *http.Request) error {
	token := tokenFrom(r)
	if token == "" {
		return apperr.Authentication("admin token required")
	}
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			return nil
		}
	}
	return apperr.Authentication("invalid admin token")
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
