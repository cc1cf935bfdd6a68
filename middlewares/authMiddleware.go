package middlewares

import (
	"net/http"
	"strings"

	"github.com/conrover/DocFlow/models"
	"github.com/conrover/DocFlow/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthMiddleware validates a Bearer token when present and loads the caller's
// identity into the request context. Requests without a token pass through
// anonymously; RequireAuth gates the protected routes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		ctx = utils.SetIsAdminInContext(ctx, claim.Role == models.UserRoleAdmin)
		if user, err := models.GetUser(ctx, claim.ID); err == nil {
			ctx = utils.SetUserNameInContext(ctx, user.Name)
			ctx = utils.SetUserEmailInContext(ctx, user.Email)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth aborts requests that did not authenticate.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CorrelationMiddleware stamps every request with a correlation id, taking
// the caller's X-Correlation-Id when supplied.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Request.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", id)
		c.Next()
	}
}
