package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"face-attendance-backend/internal/checkin"
)

// failureStatus maps a pipeline failure to its HTTP status.
func failureStatus(kind checkin.Kind) int {
	switch kind {
	case checkin.KindInvalidImage:
		return http.StatusBadRequest
	case checkin.KindRecognitionFailure:
		return http.StatusUnprocessableEntity
	case checkin.KindPolicyRejection:
		return http.StatusConflict
	case checkin.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(c *gin.Context, status int, kind checkin.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":    "error",
		"error":     kind,
		"message":   message,
		"retryable": kind.Retryable(),
	})
}

// MarkAttendance handles POST /api/mark-attendance with a multipart "file".
func (h *Handler) MarkAttendance(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeFailure(c, http.StatusRequestEntityTooLarge, checkin.KindInvalidImage, "Image is too large!")
			return
		}
		writeFailure(c, http.StatusBadRequest, checkin.KindInvalidImage, "An image file is required!")
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeFailure(c, http.StatusBadRequest, checkin.KindInvalidImage, "Could not read the uploaded image!")
		return
	}
	defer f.Close()

	img, err := io.ReadAll(f)
	if err != nil {
		writeFailure(c, http.StatusBadRequest, checkin.KindInvalidImage, "Could not read the uploaded image!")
		return
	}

	res, err := h.marker.Mark(c.Request.Context(), img)
	if err != nil {
		var ce *checkin.Error
		if !errors.As(err, &ce) {
			log.Printf("Unexpected error marking attendance: %v", err)
			writeFailure(c, http.StatusInternalServerError, checkin.KindUnavailable, "Internal server error")
			return
		}
		log.Printf("Attendance rejected: %v", ce)
		writeFailure(c, failureStatus(ce.Kind), ce.Kind, ce.Reason)
		return
	}

	if h.cache != nil {
		h.cache.Flush()
	}

	body := gin.H{
		"status":            "success",
		"action":            res.Action,
		"message":           res.Message(),
		"emp_id":            res.EmpID,
		"employee_name":     res.EmployeeName,
		"attendance_status": res.Status,
		"check_in":          res.CheckIn,
	}
	if res.Action == checkin.ActionCheckOut {
		body["check_out"] = res.CheckOut
		body["total_working_hours"] = res.TotalWorkingHours
	}
	c.JSON(http.StatusOK, body)
}
