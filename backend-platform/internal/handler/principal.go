package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/domain"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
	"github.com/prohmpiriya/gym-platform/pkg/middleware"
	"github.com/prohmpiriya/gym-platform/pkg/response"
)

// ContextKeyPrincipal holds the resolved *domain.Principal
const ContextKeyPrincipal = "principal"

// PrincipalResolver turns an authenticated user id into a principal
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID string) (*domain.Principal, error)
}

// Principal resolves the caller's roles once per request. It must run after
// middleware.BearerAuth.
func Principal(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			response.AbortWithError(c, apperror.Authentication("Authentication required"))
			return
		}
		p, err := resolver.Resolve(c.Request.Context(), userID)
		if err != nil {
			response.AbortWithError(c, apperror.Internal(err))
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// GetPrincipal extracts the principal set by Principal
func GetPrincipal(c *gin.Context) (*domain.Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil, false
	}
	p, ok := v.(*domain.Principal)
	return p, ok && p != nil
}
