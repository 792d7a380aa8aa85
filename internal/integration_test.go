package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"face-attendance-backend/internal/api"
	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/checkin"
	"face-attendance-backend/internal/db"
	"face-attendance-backend/internal/gallery"
	"face-attendance-backend/internal/model"
	"face-attendance-backend/internal/mw"
	"face-attendance-backend/internal/recognition"
	"face-attendance-backend/internal/store"
)

func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// colorExtractor embeds the dominant color of the frame; black means no face.
type colorExtractor struct{}

func (colorExtractor) Extract(_ context.Context, data []byte) ([]recognition.Face, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r == 0 && g == 0 && b == 0 {
		return nil, nil
	}
	return []recognition.Face{{
		Region:    img.Bounds(),
		Embedding: recognition.Embedding{float64(r) / 0xffff, float64(g) / 0xffff, float64(b) / 0xffff},
	}}, nil
}

type markResponse struct {
	Status            string   `json:"status"`
	Action            string   `json:"action"`
	Message           string   `json:"message"`
	EmpID             string   `json:"emp_id"`
	EmployeeName      string   `json:"employee_name"`
	AttendanceStatus  string   `json:"attendance_status"`
	TotalWorkingHours *float64 `json:"total_working_hours"`
	Error             string   `json:"error"`
	Retryable         bool     `json:"retryable"`
}

// TestAttendanceLifecycle drives the full stack from an uploaded frame to the
// stored attendance record.
func TestAttendanceLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	// Reference images on disk, referenced the way uploads store them.
	pictures := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pictures, "E001.png"), solidPNG(t, red), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(pictures, "E002.png"), solidPNG(t, green), 0o600))
	require.NoError(t, testDB.Create(&[]model.User{
		{EmpID: "E001", Name: "Alice"},
		{EmpID: "E002", Name: "Bob"},
		{EmpID: "E003", Name: "Carol"},
	}).Error)
	require.NoError(t, testDB.Create(&[]model.Profile{
		{EmpID: "E001", ProfilePicture: "uploads/profile_pictures/E001.png"},
		{EmpID: "E002", ProfilePicture: `uploads\profile_pictures\E002.png`},
		{EmpID: "E003", ProfilePicture: "https://cdn.example.com/E003.png"},
	}).Error)

	appStore := store.NewGormStore(testDB)
	loader := gallery.NewLoader(appStore,
		gallery.FSImageStore{Root: pictures, Prefix: "uploads/profile_pictures/"},
		colorExtractor{}, 2)
	galleryCache := gallery.NewCache(loader, 0)

	matcher, err := recognition.NewMatcher(recognition.DefaultThreshold)
	require.NoError(t, err)
	policy := attendance.Policy{CheckInStart: 9, CheckInEnd: 9.5, CheckOutStart: 17, Location: time.UTC}

	var now time.Time
	service := checkin.NewService(galleryCache, colorExtractor{}, matcher, appStore, policy,
		checkin.WithClock(func() time.Time { return now }))

	handler := api.NewHandler(appStore, service, galleryCache, mw.NewResponseCache(time.Minute), nil, 1<<20)
	router := api.NewRouter(handler, api.RouterOptions{RateLimitPerSec: 1000, RateLimitBurst: 1000})

	mark := func(frame []byte) (int, markResponse) {
		var buf bytes.Buffer
		mpw := multipart.NewWriter(&buf)
		part, err := mpw.CreateFormFile("file", "image.jpg")
		require.NoError(t, err)
		part.Write(frame)
		require.NoError(t, mpw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/mark-attendance", &buf)
		req.Header.Set("Content-Type", mpw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp markResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
		return w.Code, resp
	}
	day := func(h, m int) time.Time { return time.Date(2024, 5, 2, h, m, 0, 0, time.UTC) }

	// The remote picture is skipped; two identities are known.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/gallery", nil))
	assert.JSONEq(t, `{"version":0,"cached":false,"entries":2,"identities":["E001","E002"]}`, w.Body.String())

	// Alice checks in on time.
	now = day(9, 12)
	code, resp := mark(solidPNG(t, red))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "check_in", resp.Action)
	assert.Equal(t, "Alice", resp.EmployeeName)
	assert.Equal(t, "On-Time", resp.AttendanceStatus)

	// Bob is late.
	now = day(10, 0)
	code, resp = mark(solidPNG(t, green))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "E002", resp.EmpID)
	assert.Equal(t, "Late", resp.AttendanceStatus)

	// Alice tries to leave early.
	now = day(16, 0)
	code, resp = mark(solidPNG(t, red))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "policy_rejection", resp.Error)
	assert.Equal(t, "Check-Out is allowed only after 17:00!", resp.Message)

	// A stranger and an empty frame are both recognition failures.
	code, resp = mark(solidPNG(t, blue))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "recognition_failure", resp.Error)
	code, _ = mark(solidPNG(t, color.RGBA{A: 255}))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	// Garbage is rejected before recognition.
	code, resp = mark([]byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_image", resp.Error)

	// Alice leaves at 18:30 after 9.3 hours.
	now = day(18, 30)
	code, resp = mark(solidPNG(t, red))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "check_out", resp.Action)
	require.NotNil(t, resp.TotalWorkingHours)
	assert.Equal(t, 9.3, *resp.TotalWorkingHours)

	// Once checked out, Alice is done for the day.
	now = day(19, 5)
	code, resp = mark(solidPNG(t, red))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "policy_rejection", resp.Error)
	assert.Equal(t, "Already checked out for today!", resp.Message)

	var rows []model.Attendance
	require.NoError(t, testDB.Order("emp_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "E001", rows[0].EmpID)
	require.NotNil(t, rows[0].TotalWorkingHours)
	assert.Equal(t, 9.3, *rows[0].TotalWorkingHours)
	assert.True(t, rows[1].IsOpen())

	// The listing reflects the check-out.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/attendance?emp_id=E001&date=2024-05-02", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_working_hours":9.3`)
}
