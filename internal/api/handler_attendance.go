package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/store"
)

// GetAttendance handles GET /api/attendance?emp_id=&date=&limit=.
func (h *Handler) GetAttendance(c *gin.Context) {
	q := store.AttendanceQuery{EmpID: c.Query("emp_id")}

	if date := c.Query("date"); date != "" {
		if _, err := time.Parse(attendance.DayLayout, date); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		q.Day = date
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = limit
	}

	rows, err := h.store.ListAttendance(c.Request.Context(), q)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve attendance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}
