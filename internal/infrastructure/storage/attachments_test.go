package storage_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/claims-engine/internal/infrastructure/storage"
)

type objetosFalsos struct {
	objetos     map[string]string
	contentType string
}

func (o *objetosFalsos) PutObject(_ context.Context, _, name string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	o.objetos[name] = string(b)
	o.contentType = opts.ContentType
	return minio.UploadInfo{Key: name}, nil
}

func (o *objetosFalsos) StatObject(_ context.Context, bucket, name string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if _, ok := o.objetos[name]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, BucketName: bucket, Key: name}
	}
	return minio.ObjectInfo{Key: name}, nil
}

func (o *objetosFalsos) RemoveObject(_ context.Context, _, name string, _ minio.RemoveObjectOptions) error {
	delete(o.objetos, name)
	return nil
}

func TestMinIOStore_PutExistsDelete(t *testing.T) {
	ctx := context.Background()
	fake := &objetosFalsos{objetos: map[string]string{}}
	s := storage.NewMinIOStore(fake, "anexos")

	ref, err := s.Put(ctx, "t-1", "../../laudo.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "t-1/"))
	assert.True(t, strings.HasSuffix(ref, "-laudo.pdf"), "el nombre se normaliza sin rutas")
	assert.Equal(t, "application/pdf", fake.contentType)

	ok, err := s.Exists(ctx, "t-1", ref)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "t-2", ref)
	require.NoError(t, err)
	assert.False(t, ok, "otro tenant no puede referenciar el anexo")

	require.NoError(t, s.Delete(ctx, ref))
	ok, err = s.Exists(ctx, "t-1", ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	ref, err := s.Put(ctx, "t-1", "guia.xml", "text/xml", []byte("<x/>"))
	require.NoError(t, err)
	ok, _ := s.Exists(ctx, "t-1", ref)
	assert.True(t, ok)
	require.NoError(t, s.Delete(ctx, ref))
	assert.Equal(t, 0, s.Len())
}
