package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
	"sales-crm/internal/utils"
)

const (
	actorKey  = "actor"
	claimsKey = "claims"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
}

// JWTAuth admits requests carrying a valid, unrevoked bearer token for an active account
// and stores the resolved actor on the context.
func JWTAuth(issuer *utils.TokenIssuer, revoker *utils.TokenRevoker, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, issuer, revoker, db) {
			c.Next()
		}
	}
}

// OptionalJWTAuth resolves the actor when a token is sent and lets anonymous requests
// through. A token that is sent but invalid is still rejected.
func OptionalJWTAuth(issuer *utils.TokenIssuer, revoker *utils.TokenRevoker, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if authenticate(c, issuer, revoker, db) {
			c.Next()
		}
	}
}

func authenticate(c *gin.Context, issuer *utils.TokenIssuer, revoker *utils.TokenRevoker, db *gorm.DB) bool {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		unauthorized(c, "missing authorization header")
		return false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		unauthorized(c, "invalid authorization header format")
		return false
	}

	claims, err := issuer.ParseToken(parts[1])
	if err != nil {
		log.Debug("invalid or expired token", zap.Error(err))
		unauthorized(c, "invalid or expired token")
		return false
	}

	revoked, err := revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Error("revocation lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "session store unavailable"})
		return false
	}
	if revoked {
		unauthorized(c, "session has ended")
		return false
	}

	actor, err := access.LoadActor(ctx, db, claims.AccountID)
	if errors.Is(err, access.ErrUnauthenticated) {
		unauthorized(c, "account is not active")
		return false
	}
	if err != nil {
		log.Error("actor lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
		return false
	}

	c.Set(claimsKey, claims)
	c.Set(actorKey, actor)
	c.Request = c.Request.WithContext(logger.WithContext(ctx, log.With(zap.Int64("account_id", actor.Account.ID))))
	return true
}

// Actor returns the authenticated actor, or the zero Actor on public routes.
func Actor(c *gin.Context) access.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(access.Actor); ok {
			return a
		}
	}
	return access.Actor{}
}

func Claims(c *gin.Context) *utils.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok {
			return claims
		}
	}
	return nil
}
