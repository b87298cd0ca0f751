package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"crmgate/internal/config"
	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/http/handlers"
)

type sessionClaims struct {
	SalesID uint `json:"sales_id"`
	jwt.RegisteredClaims
}

// SessionAuth validates the /users bearer session token (HS256) and
// loads the calling sale onto the context. Disabled accounts are
// rejected the same way as invalid tokens.
func SessionAuth(db *gorm.DB, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := string(ctx.Request.Header.Peek("Authorization"))
			if !strings.HasPrefix(auth, "Bearer ") {
				handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
				return
			}
			tokenStr := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims := &sessionClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
				return
			}

			var sale dbpkg.Sale
			if err := db.First(&sale, claims.SalesID).Error; err != nil || sale.Disabled {
				handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
				return
			}

			httpctx.SetSale(ctx, &sale)
			next(ctx)
		}
	}
}

// IssueSessionToken mints a signed session token for the given sale.
func IssueSessionToken(secret string, salesID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		SalesID: salesID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "crmgate",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
