package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
)

// HeaderOrganizationID lets an admin act on behalf of another organization.
const HeaderOrganizationID = "X-Organization-ID"

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth middleware validates JWT tokens and populates user context.
// Every authenticated request is scoped to exactly one organization: the one
// in the token, or for admins the one named by X-Organization-ID.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := validator.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		if requested := strings.TrimSpace(c.GetHeader(HeaderOrganizationID)); requested != "" && requested != user.OrganizationID {
			if !user.IsAdmin {
				_ = c.Error(
					apperror.NewForbidden("organization mismatch").
						WithDetail("header_organization_id", requested).
						WithDetail("token_organization_id", user.OrganizationID),
				)
				c.Abort()
				return
			}
			scoped := *user
			scoped.OrganizationID = requested
			user = &scoped
		}
		if user.OrganizationID == "" {
			_ = c.Error(apperror.NewForbidden("no organization in scope"))
			c.Abort()
			return
		}

		ctx := appctx.WithUser(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", user.UserID)
		c.Set("organization_id", user.OrganizationID)
		c.Set("permissions", user.Permissions)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
