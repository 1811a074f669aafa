package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nimbus-edu/timetable-api/internal/models"
)

func TestAllowed(t *testing.T) {
	cases := []struct {
		role       models.UserRole
		capability Capability
		want       bool
	}{
		{models.RoleSuperAdmin, CapTimetablePublish, true},
		{models.RoleSchoolAdmin, CapCatalogWrite, true},
		{models.RoleTeacher, CapTimetableRead, true},
		{models.RoleTeacher, CapAvailabilityWrite, true},
		{models.RoleTeacher, CapTimetableWrite, false},
		{models.RoleTeacher, CapTimetablePublish, false},
		{models.RoleStudent, CapTimetableRead, true},
		{models.RoleStudent, CapAvailabilityWrite, false},
		{models.UserRole("GHOST"), CapTimetableRead, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(tc.role, tc.capability), "%s / %s", tc.role, tc.capability)
	}
}

func TestRequireCapability(t *testing.T) {
	gin.SetMode(gin.TestMode)

	perform := func(claims *models.JWTClaims, capability Capability) int {
		recorder := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(recorder)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		RequireCapability(capability)(c)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, perform(&models.JWTClaims{Role: models.RoleSchoolAdmin}, CapTimetableWrite))
	assert.Equal(t, http.StatusForbidden, perform(&models.JWTClaims{Role: models.RoleStudent}, CapTimetableWrite))
	assert.Equal(t, http.StatusUnauthorized, perform(nil, CapTimetableRead))
}
