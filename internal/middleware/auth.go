package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/pkg/utils"
)

const (
	contextUserKey   = "auth_user"
	contextAPIKeyKey = "auth_api_key"
)

// APIKeyAuth authenticates the API surface via the X-API-KEY header.
// Integration-scoped keys (issued to vendor bots) are rejected here;
// they only authenticate webhook management calls.
func APIKeyAuth(keys models.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-KEY")
		if raw == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "API key required", nil)
			c.Abort()
			return
		}

		key, err := keys.GetByKey(raw)
		if err != nil || key == nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid API key", nil)
			c.Abort()
			return
		}
		if key.Integration {
			utils.ErrorResponse(c, http.StatusForbidden, "Integration keys cannot call this endpoint", nil)
			c.Abort()
			return
		}

		c.Set(contextAPIKeyKey, key)
		c.Next()
	}
}

// UserAuth resolves the calling user from the X-User-Email header, set by
// the authenticating frontend proxy. Selfhosted installs run without an
// identity provider, so an absent header leaves the request anonymous
// rather than rejecting it; handlers that need an owner check for nil.
func UserAuth(users models.UserRepository, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader("X-User-Email")
		if email == "" {
			if required {
				utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		user, err := users.GetByEmail(email)
		if err != nil || user == nil {
			if required {
				utils.ErrorResponse(c, http.StatusUnauthorized, "Unknown user", nil)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil for anonymous calls.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentAPIKey returns the API key a request authenticated with, if any.
func CurrentAPIKey(c *gin.Context) *models.APIKey {
	v, ok := c.Get(contextAPIKeyKey)
	if !ok {
		return nil
	}
	key, _ := v.(*models.APIKey)
	return key
}
