package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/database"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	gatewayIDKey contextKey = "gateway_id"
)

// DefaultDeviceTokenHeader carries the mini-PC credential on ingest requests
const DefaultDeviceTokenHeader = "X-Clearpoint-Device-Token"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not support hijacking")
}

// loggingMiddleware assigns a request ID and logs every request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = "req_" + uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapped, r)

		fields := logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"size":        wrapped.size,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   getClientIP(r),
			"user_agent":  r.UserAgent(),
		}
		entry := s.logger.WithFields(fields)
		switch {
		case wrapped.statusCode >= 500:
			entry.Error("HTTP request")
		case wrapped.statusCode >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	})
}

// recoveryMiddleware recovers from panics and returns a 500 envelope
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error":      err,
					"stack":      string(debug.Stack()),
					"path":       r.URL.Path,
					"method":     r.Method,
					"request_id": requestIDFrom(r),
				}).Error("Panic recovered in HTTP handler")

				s.writeError(w, r, ErrorCodeInternalError, "Internal Server Error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// jwtMiddleware requires an HS256 admin token. Browsers cannot set headers on
// websocket upgrades, so a token query parameter is accepted as well.
func (s *Server) jwtMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenString = strings.TrimPrefix(auth, "Bearer ")
		} else if q := r.URL.Query().Get("token"); q != "" {
			tokenString = q
		}

		if tokenString == "" {
			s.logSecurityEvent("auth_missing", r)
			s.writeError(w, r, ErrorCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := ParseAdminToken(s.config.JWTSecret, tokenString)
		if err != nil {
			s.logSecurityEvent("auth_failed", r)
			s.writeError(w, r, ErrorCodeUnauthorized, "Invalid or expired token")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"subject": claims.Subject,
			"path":    r.URL.Path,
		}).Debug("Authentication successful")

		next.ServeHTTP(w, r)
	})
}

// deviceTokenMiddleware authenticates mini-PCs by their device token
func (s *Server) deviceTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(s.config.DeviceTokenHeader))
		if raw == "" {
			s.logSecurityEvent("device_token_missing", r)
			s.writeError(w, r, ErrorCodeUnauthorized, "Device token required")
			return
		}

		token, err := s.store.LookupDeviceToken(r.Context(), database.HashToken(raw))
		if errors.Is(err, database.ErrInvalidToken) {
			s.logSecurityEvent("device_token_invalid", r)
			s.writeError(w, r, ErrorCodeInvalidToken, "Invalid device token")
			return
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to look up device token")
			s.writeError(w, r, ErrorCodeDatabaseError, "Failed to verify device token")
			return
		}
		if token.Revoked() {
			s.logSecurityEvent("device_token_revoked", r)
			s.writeError(w, r, ErrorCodeInvalidToken, "Device token has been revoked")
			return
		}

		ctx := context.WithValue(r.Context(), gatewayIDKey, token.GatewayID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminClaims are the claims carried by admin API tokens
type AdminClaims struct {
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 admin token for subject valid for ttl
func IssueAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "clearpoint-monitor",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAdminToken validates an admin token and returns its claims
func ParseAdminToken(secret, tokenString string) (*AdminClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// logSecurityEvent logs security-related events
func (s *Server) logSecurityEvent(event string, r *http.Request) {
	s.logger.WithFields(logrus.Fields{
		"event":      event,
		"client_ip":  getClientIP(r),
		"path":       r.URL.Path,
		"method":     r.Method,
		"user_agent": r.UserAgent(),
		"request_id": requestIDFrom(r),
	}).Warn("Security event")
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func gatewayIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(gatewayIDKey).(string)
	return id
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
