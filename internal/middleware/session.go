package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openprep/testprep-backend/internal/response"
	"github.com/openprep/testprep-backend/internal/service"
)

// CheckSession validates the JWT's JTI against the active session in Redis.
// A token superseded by a newer login on another device is rejected here.
func CheckSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := authService.ValidateSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
