package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/julienschmidt/httprouter"

	"github.com/gipjazes/ingest-api/errors"
)

type contextKey int

const uploaderKey contextKey = iota

// UploaderID returns the authenticated uploader identity set by IsAuthorized,
// or empty if the request never passed through it.
func UploaderID(ctx context.Context) string {
	id, _ := ctx.Value(uploaderKey).(string)
	return id
}

// IsAuthorized verifies the bearer token and stores the subject claim on the
// request context as the uploader identity.
func IsAuthorized(jwtSecret string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authHeader := r.Header.Get("Authorization")

		if authHeader == "" {
			errors.WriteHTTPUnauthorized(w, "No authorization header", nil)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		uploaderID, err := parseUploaderID(token, jwtSecret)
		if err != nil {
			errors.WriteHTTPUnauthorized(w, "Invalid Token", err)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), uploaderKey, uploaderID))
		next(w, r, ps)
	}
}

func parseUploaderID(token, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}

	// Tokens carry the user ID either as the standard subject or as an "id"
	// claim, depending on which auth service minted them.
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", fmt.Errorf("token has no user identity claim")
}
