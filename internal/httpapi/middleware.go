package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := strings.TrimSpace(ctx.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(contextRequestID, requestID)
		ctx.Header(headerRequestID, requestID)
		ctx.Next()
	}
}

func accessLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info(logMessageRequest,
			zap.String("method", ctx.Request.Method),
			zap.String("route", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String(contextRequestID, ctx.GetString(contextRequestID)),
		)
	}
}

// sessionMiddleware resolves the bearer token into the caller's account id.
func sessionMiddleware(sessions *Sessions, lookup AccountLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
			return
		}
		accountID, err := sessions.Verify(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)), lookup)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
			return
		}
		ctx.Set(contextAccountID, accountID)
		ctx.Next()
	}
}

// adminMiddleware compares X-Admin-Secret against a bcrypt hash.
func adminMiddleware(secretHash string) gin.HandlerFunc {
	hash := []byte(secretHash)
	return func(ctx *gin.Context) {
		if len(hash) == 0 {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(errorAdminDisabled, messageAdminDisabled))
			return
		}
		secret := ctx.GetHeader(headerAdminSecret)
		if secret == "" || bcrypt.CompareHashAndPassword(hash, []byte(secret)) != nil {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(errorForbidden, messageInvalidAdminSecret))
			return
		}
		ctx.Next()
	}
}

func sessionAccount(ctx *gin.Context) (ledger.AccountID, bool) {
	value, ok := ctx.Get(contextAccountID)
	if !ok {
		return ledger.AccountID{}, false
	}
	accountID, ok := value.(ledger.AccountID)
	return accountID, ok
}
