package rpc

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"promoledger/observability"
)

const (
	headerRequestID = "X-Request-ID"
	jwtClockSkew    = 2 * time.Minute
	visitorTTL      = 5 * time.Minute
)

type contextKey string

const (
	contextKeyRequestID contextKey = "rpc.requestID"
	contextKeyMethod    contextKey = "rpc.method"
)

// requestID tags every request with an id, reusing a well-formed inbound one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// methodHolder lets the JSON-RPC dispatcher report the method back to the
// observing middleware once the body has been decoded.
type methodHolder struct {
	mu     sync.Mutex
	method string
}

func setMethod(ctx context.Context, method string) {
	if holder, ok := ctx.Value(contextKeyMethod).(*methodHolder); ok {
		holder.mu.Lock()
		holder.method = method
		holder.mu.Unlock()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket handshake take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("rpc: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		holder := &methodHolder{method: r.URL.Path}
		ctx := context.WithValue(r.Context(), contextKeyMethod, holder)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		holder.mu.Lock()
		method := holder.method
		holder.mu.Unlock()
		observability.RPCMetrics().Observe(method, recorder.status, time.Since(start))
		requestID, _ := ctx.Value(contextKeyRequestID).(string)
		s.logger.Debug("rpc request",
			slog.String("method", method),
			slog.Int("status", recorder.status),
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)))
	})
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a token bucket per client address.
type rateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
}

// newRateLimiter returns a limiter allowing requestsPerMinute with burst.
// A non-positive rate disables limiting.
func newRateLimiter(requestsPerMinute float64, burst int) *rateLimiter {
	if requestsPerMinute <= 0 {
		return &rateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		perSecond: rate.Limit(requestsPerMinute / 60.0),
		burst:     burst,
		visitors:  make(map[string]*rateEntry),
		clockNow:  time.Now,
	}
}

func (l *rateLimiter) enabled() bool { return l != nil && l.visitors != nil }

func (l *rateLimiter) allow(id string) bool {
	if !l.enabled() {
		return true
	}
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
	entry, ok := l.visitors[id]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := clientSource(r)
		if !l.allow(source) {
			observability.PromoMetrics().RecordThrottle("rpc", "rate_limit")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", source)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticator validates HS256 bearer tokens on write methods.
type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(secret, issuer string) *authenticator {
	return &authenticator{secret: []byte(strings.TrimSpace(secret)), issuer: strings.TrimSpace(issuer)}
}

func (a *authenticator) require(r *http.Request) *RPCError {
	if len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication secret not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	if err := a.verify(token); err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return nil
}

func (a *authenticator) verify(tokenString string) error {
	opts := []jwt.ParserOption{jwt.WithLeeway(jwtClockSkew), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// IssueToken signs a bearer token accepted by a server configured with the
// same secret and issuer.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims.Issuer = issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(strings.TrimSpace(secret)))
}
