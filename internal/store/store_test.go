package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/boardwalk/internal/render"
)

func pngImage(data string) *render.RenderedImage {
	return &render.RenderedImage{Data: []byte(data), Format: render.Raster, Width: 8, Height: 8}
}

func svgImage(data string) *render.RenderedImage {
	return &render.RenderedImage{Data: []byte(data), Format: render.Vector, Width: 8, Height: 8}
}

func TestFileStore_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewFileStoreFs(afero.NewMemMapFs(), "boards")

	path, err := s.Save(ctx, pngImage("png"), "board_1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("boards", "board_1.png"), path)

	svgPath, err := s.Save(ctx, svgImage("<svg/>"), "board_2")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("boards", "board_2.svg"), svgPath)

	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)

	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Read(ctx, path)
	require.True(t, IsMissing(err))

	// deleting again is fine
	require.NoError(t, s.Delete(ctx, path))
}

func TestFileStore_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := NewFileStoreFs(afero.NewMemMapFs(), "boards")

	_, err := s.Save(ctx, pngImage("first"), "board_1")
	require.NoError(t, err)
	path, err := s.Save(ctx, pngImage("second"), "board_1")
	require.NoError(t, err)

	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "boards")
	s := NewFileStore(dir)
	require.Equal(t, dir, s.Dir())

	path, err := s.Save(context.Background(), pngImage("x"), "board_1")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), info.Size())
}

func TestFileStore_ReadMissing(t *testing.T) {
	s := NewFileStoreFs(afero.NewMemMapFs(), "boards")

	_, err := s.Read(context.Background(), "boards/board_9.png")
	var missing *ResourceMissingError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "boards/board_9.png", missing.Path)
}

func TestFileStore_SaveFailureIsStoreError(t *testing.T) {
	s := NewFileStoreFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "boards")

	_, err := s.Save(context.Background(), pngImage("x"), "board_1")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, "save", storeErr.Op)
}

func TestFileStore_RejectsEmptyInput(t *testing.T) {
	s := NewFileStoreFs(afero.NewMemMapFs(), "boards")

	_, err := s.Save(context.Background(), nil, "board_1")
	require.Error(t, err)
	_, err = s.Save(context.Background(), pngImage("x"), "")
	require.Error(t, err)
}

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	if f.failPut != nil {
		return f.failPut
	}
	f.objects[bucket+"/"+key] = append([]byte(nil), data...)
	f.types[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errObjectMissing
	}
	return data, nil
}

func (f *fakeObjects) Remove(_ context.Context, bucket, key string) error {
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return errObjectMissing
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}

func TestObjectStore_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	s := newObjectStore(objects, "chess", "boards/")

	path, err := s.Save(ctx, svgImage("<svg/>"), "board_3")
	require.NoError(t, err)
	require.Equal(t, "s3://chess/boards/board_3.svg", path)
	require.Equal(t, "image/svg+xml", objects.types["chess/boards/board_3.svg"])

	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []byte("<svg/>"), data)

	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Read(ctx, path)
	require.True(t, IsMissing(err))
	require.NoError(t, s.Delete(ctx, path))
}

func TestObjectStore_Errors(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	objects.failPut = errors.New("access denied")
	s := newObjectStore(objects, "chess", "")

	_, err := s.Save(ctx, pngImage("x"), "board_1")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, "s3://chess/board_1.png", storeErr.Path)
	require.Contains(t, err.Error(), "access denied")

	_, err = s.Read(ctx, "s3://other/board_1.png")
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, "read", storeErr.Op)
}

func TestNewObjectStore_RequiresBucket(t *testing.T) {
	_, err := NewObjectStore(S3Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	s, err := NewObjectStore(S3Config{Endpoint: "localhost:9000", Bucket: "chess", Prefix: "b/"})
	require.NoError(t, err)
	require.Equal(t, "s3://chess/b/x.png", s.location("b/x.png"))
}
