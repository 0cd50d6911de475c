// Package auth: проверка Bearer-токена для админских маршрутов.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const subjectKey = "auth.subject"

// Guard проверяет HS256-токены общим секретом.
type Guard struct {
	secret []byte
	log    *slog.Logger
	now    func() time.Time
}

func NewGuard(secret string, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	if secret == "" {
		log.Warn("auth: jwt secret is empty, admin routes are open")
	}
	return &Guard{secret: []byte(secret), log: log, now: time.Now}
}

// Enabled: задан ли секрет.
func (g *Guard) Enabled() bool { return len(g.secret) > 0 }

// Verify разбирает токен и возвращает subject.
func (g *Guard) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return g.secret, nil })
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Issue выпускает токен; нужен CLI и тестам.
func (g *Guard) Issue(subject string, ttl time.Duration) (string, error) {
	if !g.Enabled() {
		return "", errors.New("auth: jwt secret is not configured")
	}
	now := g.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Middleware: без секрета пропускает всё.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.Next()
			return
		}
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Missing bearer token")
			return
		}
		sub, err := g.Verify(raw)
		if err != nil {
			g.log.Debug("auth: token rejected", "err", err)
			unauthorized(c, "Invalid or expired token")
			return
		}
		c.Set(subjectKey, sub)
		c.Next()
	}
}

// Subject: кто прошёл проверку; пусто при выключенной защите.
func Subject(c *gin.Context) string { return c.GetString(subjectKey) }

func bearer(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"message": msg, "status": http.StatusUnauthorized},
	})
}
