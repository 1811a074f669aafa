package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/middleware"
	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// schoolScope resolves the tenant for the request: the caller's own school,
// unless a superadmin overrides it with the school_id query parameter.
func schoolScope(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if claims.Role == models.RoleSuperAdmin {
		if override := c.Query("school_id"); override != "" {
			return override, true
		}
	}
	if claims.SchoolID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token carries no school scope"))
		return "", false
	}
	return claims.SchoolID, true
}

// writeServiceError renders service failures, giving scheduling conflicts
// their dedicated 409 payload.
func writeServiceError(c *gin.Context, err error) {
	var conflict *models.TimetableConflictError
	if errors.As(err, &conflict) {
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusConflict, gin.H{"error": gin.H{
			"code":      "SCHEDULE_CONFLICT",
			"status":    http.StatusConflict,
			"message":   conflict.Message,
			"reason":    conflict.Reason,
			"conflict":  conflict.Conflict,
			"conflicts": conflict.Conflicts,
		}})
		return
	}
	response.Error(c, err)
}
