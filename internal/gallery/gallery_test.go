package gallery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance-backend/internal/parse"
	"face-attendance-backend/internal/recognition"
)

type staticDirectory struct {
	refs []Reference
	err  error
}

func (d staticDirectory) References(context.Context) ([]Reference, error) {
	return d.refs, d.err
}

type mapImages map[string][]byte

func (m mapImages) Read(picture string) ([]byte, error) {
	data, ok := m[picture]
	if !ok {
		return nil, ErrNoImage
	}
	if data == nil {
		return nil, ErrUnreadableImage
	}
	return data, nil
}

// fakeExtractor maps image bytes to faces.
type fakeExtractor struct {
	faces map[string][]recognition.Face
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, img []byte) ([]recognition.Face, error) {
	f.calls.Add(1)
	faces, ok := f.faces[string(img)]
	if !ok {
		return nil, errors.New("cannot decode image")
	}
	return faces, nil
}

func face(v ...float64) recognition.Face {
	return recognition.Face{Embedding: recognition.Embedding(v)}
}

func TestLoader_Load(t *testing.T) {
	dir := staticDirectory{refs: []Reference{
		{Identity: "E001", Picture: "a.jpg"},
		{Identity: "E002", Picture: ""},
		{Identity: "E003", Picture: "missing.jpg"},
		{Identity: "E004", Picture: "blank.jpg"},
		{Identity: "E005", Picture: "corrupt.jpg"},
		{Identity: "E006", Picture: "noface.jpg"},
		{Identity: "E007", Picture: "two.jpg"},
	}}
	images := mapImages{
		"a.jpg":       []byte("a"),
		"blank.jpg":   nil,
		"corrupt.jpg": []byte("garbage"),
		"noface.jpg":  []byte("empty"),
		"two.jpg":     []byte("two"),
	}
	ext := &fakeExtractor{faces: map[string][]recognition.Face{
		"a":     {face(0, 0)},
		"empty": {},
		"two":   {face(1, 1), face(2, 2)},
	}}

	g, err := NewLoader(dir, images, ext, 3).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, g, 2)
	assert.Equal(t, "E001", g[0].Identity)
	assert.Equal(t, recognition.Embedding{0, 0}, g[0].Embedding)
	assert.Equal(t, "E007", g[1].Identity)
	assert.Equal(t, recognition.Embedding{1, 1}, g[1].Embedding, "first face wins")
}

func TestLoader_DirectoryError(t *testing.T) {
	dir := staticDirectory{err: errors.New("db down")}
	_, err := NewLoader(dir, mapImages{}, &fakeExtractor{}, 1).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestLoader_EmptyDirectory(t *testing.T) {
	g, err := NewLoader(staticDirectory{}, mapImages{}, &fakeExtractor{}, 0).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, g)
}

func TestFSImageStore_Read(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "E001.jpg"), []byte("jpeg"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.jpg"), nil, 0o600))

	s := FSImageStore{Root: root, Prefix: "uploads/profile_pictures/"}

	data, err := s.Read("uploads/profile_pictures/E001.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = s.Read("uploads/profile_pictures/E404.jpg")
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = s.Read("https://cdn.example.com/E001.jpg")
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = s.Read("uploads/profile_pictures/empty.jpg")
	assert.ErrorIs(t, err, ErrUnreadableImage)

	for _, bad := range []string{"../../etc/passwd", "/etc/passwd", `uploads\profile_pictures\..\..\secret.jpg`} {
		_, err = s.Read(bad)
		assert.ErrorIs(t, err, ErrUnreadableImage, bad)
		assert.ErrorIs(t, err, parse.ErrInvalidPicture, bad)
		assert.NotErrorIs(t, err, ErrNoImage, bad)
	}
}

func TestCache_ReusesSnapshotUntilRefresh(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := &fakeExtractor{faces: map[string][]recognition.Face{"a": {face(0)}}}
	c := NewCache(NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1), time.Minute)

	ctx := context.Background()
	g1, err := c.Gallery(ctx)
	require.NoError(t, err)
	g2, err := c.Gallery(ctx)
	require.NoError(t, err)
	assert.Equal(t, g1, g2)
	assert.EqualValues(t, 1, ext.calls.Load())

	assert.EqualValues(t, 1, c.Refresh())
	assert.EqualValues(t, 1, c.Version())

	_, err = c.Gallery(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ext.calls.Load())
}

func TestCache_DoesNotStoreFailures(t *testing.T) {
	dir := &flakyDirectory{}
	c := NewCache(NewLoader(dir, mapImages{}, &fakeExtractor{}, 1), time.Minute)

	_, err := c.Gallery(context.Background())
	require.Error(t, err)

	g, err := c.Gallery(context.Background())
	require.NoError(t, err)
	assert.Empty(t, g)
}

type flakyDirectory struct {
	calls int
}

func (d *flakyDirectory) References(context.Context) ([]Reference, error) {
	d.calls++
	if d.calls == 1 {
		return nil, errors.New("temporary")
	}
	return nil, nil
}

// blockingExtractor holds every extraction until release is closed or its
// context ends.
type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingExtractor) Extract(ctx context.Context, _ []byte) ([]recognition.Face, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
		return []recognition.Face{face(0)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCache_RebuildOutlivesCancelledCaller(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := newBlockingExtractor()
	c := NewCache(NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Gallery(ctx)
		done <- err
	}()

	<-ext.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(ext.release)
	g, err := c.Gallery(context.Background())
	require.NoError(t, err)
	require.Len(t, g, 1)
	assert.EqualValues(t, 1, ext.calls.Load(), "the first rebuild is reused")
}

func TestCache_LoadTimeout(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := newBlockingExtractor()
	c := NewCache(NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1), time.Minute,
		WithLoadTimeout(20*time.Millisecond))

	_, err := c.Gallery(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(ext.release)
	g, err := c.Gallery(context.Background())
	require.NoError(t, err)
	assert.Len(t, g, 1, "an interrupted load is never cached")
}

func TestLoader_LoadFailsWhenCancelled(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := newBlockingExtractor()
	l := NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ext.started
		cancel()
	}()

	_, err := l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduleRefresh(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := &fakeExtractor{faces: map[string][]recognition.Face{"a": {face(0)}}}
	c := NewCache(NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1), time.Minute)

	s, err := ScheduleRefresh(c, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	defer s.Stop()

	assert.Eventually(t, func() bool { return c.Version() >= 1 && ext.calls.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestCache_DisabledRebuildsEveryCall(t *testing.T) {
	dir := staticDirectory{refs: []Reference{{Identity: "E001", Picture: "a.jpg"}}}
	ext := &fakeExtractor{faces: map[string][]recognition.Face{"a": {face(0)}}}
	c := NewCache(NewLoader(dir, mapImages{"a.jpg": []byte("a")}, ext, 1), 0)
	assert.False(t, c.Enabled())

	for range 3 {
		g, err := c.Gallery(context.Background())
		require.NoError(t, err)
		assert.Len(t, g, 1)
	}
	assert.EqualValues(t, 3, ext.calls.Load())
}
