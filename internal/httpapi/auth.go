package httpapi

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/commonsocial/fedbridge/internal/federation"
)

// authenticate matches the request's Basic credentials against the tokens of
// configured hosts. The matched host tells the dispatcher which dialect the
// envelope arrived in. With RequireAuth off, anonymous pushes are accepted
// and parsed in the default dialect.
func (s *Server) authenticate(r *http.Request) (*federation.Host, bool) {
	token := basicToken(r.Header.Get("Authorization"))
	if token == "" {
		if s.cfg.RequireAuth {
			return nil, false
		}
		return nil, true
	}
	for _, host := range s.store.Hosts() {
		if host.AuthB64 != "" && hmac.Equal([]byte(host.AuthB64), []byte(token)) {
			h := host
			return &h, true
		}
	}
	if s.cfg.RequireAuth {
		return nil, false
	}
	return nil, true
}

func basicToken(header string) string {
	const prefix = "Basic "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
