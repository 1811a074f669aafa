package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
	"github.com/nimbus-edu/timetable-api/pkg/response"
)

// Capability names an operation class a role may perform. Authorization is
// a closed table lookup; an unknown role holds nothing.
type Capability string

const (
	CapTimetableRead     Capability = "timetable:read"
	CapTimetableWrite    Capability = "timetable:write"
	CapTimetablePublish  Capability = "timetable:publish"
	CapCatalogWrite      Capability = "catalog:write"
	CapAvailabilityWrite Capability = "availability:write"
	CapEligibilityWrite  Capability = "eligibility:write"
	CapMetricsRead       Capability = "metrics:read"
)

var roleCapabilities = map[models.UserRole]map[Capability]bool{
	models.RoleSuperAdmin: {
		CapTimetableRead:     true,
		CapTimetableWrite:    true,
		CapTimetablePublish:  true,
		CapCatalogWrite:      true,
		CapAvailabilityWrite: true,
		CapEligibilityWrite:  true,
		CapMetricsRead:       true,
	},
	models.RoleSchoolAdmin: {
		CapTimetableRead:     true,
		CapTimetableWrite:    true,
		CapTimetablePublish:  true,
		CapCatalogWrite:      true,
		CapAvailabilityWrite: true,
		CapEligibilityWrite:  true,
		CapMetricsRead:       true,
	},
	models.RoleTeacher: {
		CapTimetableRead:     true,
		CapAvailabilityWrite: true,
	},
	models.RoleStudent: {
		CapTimetableRead: true,
	},
}

// Allowed reports whether the role holds the capability.
func Allowed(role models.UserRole, capability Capability) bool {
	return roleCapabilities[role][capability]
}

// RequireCapability rejects callers whose role lacks the capability.
// Ownership checks beyond the role level stay in the handlers.
func RequireCapability(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok || !Allowed(claims.Role, capability) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role lacks the required capability"))
			c.Abort()
			return
		}
		c.Next()
	}
}
