package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const IdempotencyHeader = "Idempotency-Key"

// Replay windows. Money-moving and order-creating routes keep their
// responses for a week, everything else for a day.
const (
	ReplayStandard = 24 * time.Hour
	ReplayCritical = 7 * 24 * time.Hour
)

type replayStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// storedResponse is what a replay writes back. Body marshals as base64.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Idempotency returns a per-route middleware factory. A request carrying an
// Idempotency-Key it has seen before gets the first response back; the same
// key with a different body is a conflict. 5xx responses are not kept so
// the client may retry them.
func Idempotency(store replayStore, logg *logger.Logger) func(ttl time.Duration) func(http.Handler) http.Handler {
	return func(ttl time.Duration) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			if store == nil {
				return next
			}
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()
				token := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
				if token == "" {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
					return
				}
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				key := store.IdempotencyKey(replayScope(r), token)
				sum := fingerprint(body)

				raw, found, err := store.Lookup(ctx, key)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup"))
					return
				}
				if found {
					var prior storedResponse
					if err := json.Unmarshal([]byte(raw), &prior); err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt idempotency record"))
						return
					}
					if prior.Fingerprint != sum {
						responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
						return
					}
					prior.replay(w)
					return
				}

				tee := &teeWriter{ResponseWriter: w}
				next.ServeHTTP(tee, r)
				if tee.code() >= http.StatusInternalServerError {
					return
				}
				encoded, err := json.Marshal(storedResponse{
					Fingerprint: sum,
					Status:      tee.code(),
					ContentType: tee.Header().Get("Content-Type"),
					Body:        tee.buf.Bytes(),
				})
				if err == nil {
					_, err = store.SetNX(ctx, key, string(encoded), ttl)
				}
				if err != nil && logg != nil {
					logg.Error(logg.WithField(ctx, "idempotency_key", token), "store idempotent response", err)
				}
			})
		}
	}
}

// replayScope ties a key to the caller and the exact path so two users, or
// two orders, never share a record.
func replayScope(r *http.Request) string {
	caller := UserIDFromContext(r.Context())
	if caller == "" {
		caller = "guest"
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// teeWriter copies the response body while passing it through.
type teeWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (t *teeWriter) WriteHeader(code int) {
	if t.status == 0 {
		t.status = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *teeWriter) Write(b []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}
	t.buf.Write(b)
	return t.ResponseWriter.Write(b)
}

func (t *teeWriter) code() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}
