package chi

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Request headers that carry caller context.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

func tenantFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderTenantID))
}

// identityFromRequest names the caller for rate limiting. The credential
// decides: a digest of the bearer token, else the client address. X-User-ID
// only narrows the bucket when trustUserHeader is set, i.e. a gateway in
// front of the service authenticates users and sets the header itself.
func identityFromRequest(r *http.Request, tenantID string, trustUserHeader bool) string {
	var user string
	if trustUserHeader {
		user = strings.TrimSpace(r.Header.Get(HeaderUserID))
	}

	if token, ok := bearerToken(r); ok {
		sum := sha256.Sum256([]byte(token))
		id := "key:" + hex.EncodeToString(sum[:12])
		if user != "" {
			id += ":user:" + tenantID + ":" + user
		}
		return id
	}
	if user != "" {
		return "user:" + tenantID + ":" + user
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "", false
	}
	token := auth[len(bearerPrefix):]
	return token, token != ""
}
