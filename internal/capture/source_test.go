package capture

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrames(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o600))
	}
	return dir
}

func TestDirSource(t *testing.T) {
	dir := writeFrames(t, "b.jpg", "a.png", "notes.txt", "c.JPEG")
	s, err := NewDirSource(dir, false)
	require.NoError(t, err)

	ctx := context.Background()
	var got []string
	for {
		frame, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(frame))
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "c.JPEG"}, got)
}

func TestDirSource_Loop(t *testing.T) {
	s, err := NewDirSource(writeFrames(t, "a.jpg", "b.jpg"), true)
	require.NoError(t, err)

	ctx := context.Background()
	var got []string
	for range 5 {
		frame, err := s.Next(ctx)
		require.NoError(t, err)
		got = append(got, string(frame))
	}
	assert.Equal(t, []string{"a.jpg", "b.jpg", "a.jpg", "b.jpg", "a.jpg"}, got)
}

func TestDirSource_Errors(t *testing.T) {
	_, err := NewDirSource(writeFrames(t, "readme.md"), false)
	assert.ErrorIs(t, err, ErrCapture)

	_, err = NewDirSource(filepath.Join(t.TempDir(), "missing"), false)
	assert.ErrorIs(t, err, ErrCapture)

	dir := writeFrames(t, "a.jpg")
	s, err := NewDirSource(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.jpg")))
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrCapture)
}

func TestSnapshotSource(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	s := NewSnapshotSource(srv.URL, time.Second)
	frame, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), frame)

	status = http.StatusServiceUnavailable
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrCapture)

	srv.Close()
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrCapture)
}
