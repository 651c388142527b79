package httptransport

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	jwttoken "taskstream/internal/jwt_token"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
	"taskstream/pkg/requestcontext"
)

// RequestID tags every request with a correlation id, honoring one supplied
// by the caller.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}

// RequestTime pins the command timestamp at ingress so every event from one
// request shares a single occurred-at.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now().UTC())))
	})
}

// Recovery converts panics into 500s instead of dropping the connection.
func Recovery(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithFields(logrus.Fields{
						"panic":      rec,
						"path":       r.URL.Path,
						"request_id": requestcontext.RequestID(r.Context()),
						"stack":      string(debug.Stack()),
					}).Error("handler panicked")
					writeError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logger emits one structured line per request.
func Logger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  requestcontext.RequestID(r.Context()),
			}).Info("request handled")
		})
	}
}

// RequireAuth validates the bearer token and puts the acting user (and the
// session, when the token carries one) on the context. The engine itself
// treats identity as opaque input.
func RequireAuth(tokens *jwttoken.Service, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				log.WithField("request_id", requestcontext.RequestID(ctx)).
					Warn("request without bearer token")
				writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := tokens.ValidateToken(raw)
			if err != nil {
				log.WithError(err).WithField("request_id", requestcontext.RequestID(ctx)).
					Warn("token rejected")
				writeError(w, err)
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				writeError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims"))
				return
			}
			ctx = requestcontext.WithActor(ctx, id.UserID(actor))
			if session, err := claims.Session(); err == nil && session != uuid.Nil {
				ctx = requestcontext.WithSessionID(ctx, id.SessionID(session))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
