package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-edu/timetable-api/internal/middleware"
	"github.com/nimbus-edu/timetable-api/internal/models"
	appErrors "github.com/nimbus-edu/timetable-api/pkg/errors"
)

func testContext(t *testing.T, target string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func TestSchoolScopeUsesCallerSchool(t *testing.T) {
	c, _ := testContext(t, "/timetable", &models.JWTClaims{
		UserID: "user-1", SchoolID: "school-1", Role: models.RoleSchoolAdmin,
	})

	schoolID, ok := schoolScope(c)
	require.True(t, ok)
	assert.Equal(t, "school-1", schoolID)
}

func TestSchoolScopeIgnoresOverrideForNonSuperadmin(t *testing.T) {
	c, _ := testContext(t, "/timetable?school_id=school-9", &models.JWTClaims{
		UserID: "user-1", SchoolID: "school-1", Role: models.RoleSchoolAdmin,
	})

	schoolID, ok := schoolScope(c)
	require.True(t, ok)
	assert.Equal(t, "school-1", schoolID)
}

func TestSchoolScopeSuperadminOverride(t *testing.T) {
	c, _ := testContext(t, "/timetable?school_id=school-9", &models.JWTClaims{
		UserID: "user-1", SchoolID: "school-1", Role: models.RoleSuperAdmin,
	})

	schoolID, ok := schoolScope(c)
	require.True(t, ok)
	assert.Equal(t, "school-9", schoolID)
}

func TestSchoolScopeMissingClaims(t *testing.T) {
	c, rec := testContext(t, "/timetable", nil)

	_, ok := schoolScope(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteServiceErrorRendersConflictPayload(t *testing.T) {
	c, rec := testContext(t, "/timetable", nil)

	writeServiceError(c, &models.TimetableConflictError{
		Reason:  models.ReasonTeacherDoubleBooked,
		Message: "teacher already booked",
		Conflict: models.TimetableConflict{
			Reason:     models.ReasonTeacherDoubleBooked,
			EntryID:    "entry-9",
			ClassID:    "class-2",
			TeacherID:  "teacher-1",
			TimeSlotID: "slot-1",
		},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error struct {
			Code     string                   `json:"code"`
			Reason   string                   `json:"reason"`
			Conflict models.TimetableConflict `json:"conflict"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SCHEDULE_CONFLICT", body.Error.Code)
	assert.Equal(t, string(models.ReasonTeacherDoubleBooked), body.Error.Reason)
	assert.Equal(t, "entry-9", body.Error.Conflict.EntryID)
}

func TestWriteServiceErrorFallsBackToEnvelope(t *testing.T) {
	c, rec := testContext(t, "/timetable", nil)

	writeServiceError(c, appErrors.ErrNothingToDiscard)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrNothingToDiscard.Code, body.Error.Code)
}
