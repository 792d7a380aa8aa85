package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"face-attendance-backend/internal/checkin"
	"face-attendance-backend/internal/db"
	"face-attendance-backend/internal/model"
	"face-attendance-backend/internal/mw"
	"face-attendance-backend/internal/recognition"
	"face-attendance-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMarker struct {
	res   *checkin.Result
	err   error
	got   []byte
	calls int
}

func (m *fakeMarker) Mark(_ context.Context, img []byte) (*checkin.Result, error) {
	m.calls++
	m.got = img
	return m.res, m.err
}

type fakeGallery struct {
	g       recognition.Gallery
	err     error
	version int64
}

func (f *fakeGallery) Gallery(context.Context) (recognition.Gallery, error) { return f.g, f.err }
func (f *fakeGallery) Refresh() int64                                     { f.version++; return f.version }
func (f *fakeGallery) Version() int64                                     { return f.version }
func (f *fakeGallery) Enabled() bool                                      { return true }

type testEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	store   store.Store
	marker  *fakeMarker
	gallery *fakeGallery
	cache   *mw.ResponseCache
}

func newTestEnv(t *testing.T) *testEnv {
	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))
	require.NoError(t, gormDB.Create(&[]model.User{
		{EmpID: "E001", Name: "Alice"},
		{EmpID: "E002", Name: "Bob"},
	}).Error)

	env := &testEnv{
		db:      gormDB,
		store:   store.NewGormStore(gormDB),
		marker:  &fakeMarker{},
		gallery: &fakeGallery{},
		cache:   mw.NewResponseCache(time.Minute),
	}
	h := NewHandler(env.store, env.marker, env.gallery, env.cache,
		&webpush.Options{VAPIDPublicKey: "public-key"}, 1<<20)
	env.router = NewRouter(h, RouterOptions{RateLimitPerSec: 1000, RateLimitBurst: 1000})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	part, err := mpw.CreateFormFile(field, "frame.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/mark-attendance", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func urlQueryEscape(s string) string {
	return url.QueryEscape(s)
}
