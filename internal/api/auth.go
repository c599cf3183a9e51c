package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="PSMove Bridge"`

var (
	errNoCredentials  = errors.New("authentication required")
	errAuthType       = errors.New("invalid authentication type")
	errAuthFormat     = errors.New("invalid credentials format")
	errBadCredentials = errors.New("invalid credentials")
)

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. EventSource cannot set headers, so the same
// base64 "user:pass" token is also accepted as the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, err := credentials(ctx.Header("Authorization"), ctx.Query("auth"))
		if err == nil && !(secureEqual(user, username) && secureEqual(pass, password)) {
			err = errBadCredentials
		}
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, capitalize(err.Error()))
			return
		}
		next(ctx)
	}
}

// credentials extracts user and password from an Authorization header, or
// from the query token when the header is absent.
func credentials(header, query string) (string, string, error) {
	token := query
	if header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", "", errAuthType
		}
		token = header[len(prefix):]
	}
	if token == "" {
		return "", "", errNoCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", errAuthFormat
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", errAuthFormat
	}
	return user, pass, nil
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
