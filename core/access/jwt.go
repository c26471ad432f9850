package access

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/projekt-software-engineering/ticket-backend/core/logger"
	"github.com/projekt-software-engineering/ticket-backend/core/registry"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// PublicKeyDownloadURL is the download url for the identity provider's
	// public keys, a JSON map from key id to x509 certificate.
	PublicKeyDownloadURL string
	// Issuer is the accepted issuer for the token
	Issuer string
	// Registry caches the downloaded certificates across cold starts.
	Registry registry.Registry
}

// tokenClaims are the verified claims this backend consumes. The role
// claims are independent booleans set by the identity provider as custom
// claims; a subject may hold any combination of them.
type tokenClaims struct {
	UserID    string `json:"user_id"`
	Admin     bool   `json:"admin"`
	Editor    bool   `json:"editor"`
	Requester bool   `json:"requester"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler that validates JWT bearer
// tokens and stores the resulting identity in the request context.
//
// A request without an Authorization header passes through unauthenticated;
// the handlers reject it with 401. A request with a token that cannot be
// verified is answered with 403 and the verification error.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	jwtRegistry := jmb.Registry.Accessor("_jwt_")
	var wellKnownCertificates map[string]string
	timestamp, err := jwtRegistry.Read(jmb.PublicKeyDownloadURL, &wellKnownCertificates)
	if err != nil {
		panic(err)
	}
	if time.Since(timestamp) > 6*time.Hour {
		// time to check for new keys
		res, err := http.Get(jmb.PublicKeyDownloadURL)
		if err == nil {
			defer res.Body.Close()
			decoder := json.NewDecoder(res.Body)
			err = decoder.Decode(&wellKnownCertificates)
			if err != nil {
				panic(err)
			}
			jwtRegistry.Write(jmb.PublicKeyDownloadURL, wellKnownCertificates)
		}
	}
	wellKnownKeys := map[string]interface{}{}
	for kid, cert := range wellKnownCertificates {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			logger.Default().WithError(err).Errorln("certificate error for kid", kid)
		} else {
			wellKnownKeys[kid] = key
		}
	}

	jwksLookup := func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, ok := wellKnownKeys[kid]
		if ok {
			return key, nil
		}
		return nil, errors.New("cannot verify token")
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromContext(r.Context()) != nil { // already authenticated?
				h.ServeHTTP(w, r)
				return
			}

			rlog := logger.FromContext(r.Context())

			tokenString := bearerToken(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token, the handlers answer with 401
				return
			}

			claims := tokenClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, jwksLookup)
			if err == nil && (!token.Valid || claims.Issuer != jmb.Issuer) {
				err = errors.New("token issuer not accepted")
			}
			if err != nil {
				rlog.WithError(err).Errorln("not able to authenticate user")
				http.Error(w, "Invalid Token: "+err.Error(), http.StatusForbidden)
				return
			}

			identity := &Identity{UserID: claims.UserID}
			if claims.Admin {
				identity.Roles = append(identity.Roles, RoleAdmin)
			}
			if claims.Editor {
				identity.Roles = append(identity.Roles, RoleEditor)
			}
			if claims.Requester {
				identity.Roles = append(identity.Roles, RoleRequester)
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx, rlog = logger.ContextWithLoggerIdentity(ctx, identity.UserID)
			rlog.Infoln("successfully authenticated user with ID:", identity.UserID)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. It accepts
// the token with or without the "Bearer " prefix.
func bearerToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) == 0 || bearer == "null" {
		return ""
	}
	if len(bearer) >= 8 && strings.EqualFold(bearer[:7], "bearer ") {
		return bearer[7:]
	}
	return bearer
}
