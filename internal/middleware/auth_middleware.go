package middleware

import (
	"context"
	"net/http"
	"strings"

	"harbor-chat/internal/services"
	"harbor-chat/internal/transport/httpdto"
	"harbor-chat/internal/websocket"
	"harbor-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthMiddleware resolves the bearer token to a user and stores the
// identity on the request context. Token issuance is out of scope; this
// service only verifies.
func AuthMiddleware(authorizer *websocket.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		sub, err := authorizer.UserIDFromToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithUserID(c.Request.Context(), userID)
		ctx = context.WithValue(ctx, logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
