package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spf13/viper"
)

// CronAuth guards externally triggered batch endpoints with a shared
// secret, accepted either as "x-cron-secret" or as a bearer token. Both
// sides are trimmed to avoid CRLF/whitespace mismatches from cron runners.
// An empty configured secret disables the endpoints entirely.
func CronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := strings.TrimSpace(viper.GetString("cron.secret"))

		got := strings.TrimSpace(r.Header.Get("x-cron-secret"))
		if got == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "UNAUTHORIZED"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
