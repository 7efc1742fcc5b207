// Package storage guarda los anexos de los recursos de glosa.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jhoicas/claims-engine/pkg/config"
)

// ObjectClient subconjunto de *minio.Client usado por el almacén.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// NewMinIOClient construye el cliente MinIO desde la configuración.
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("crear cliente MinIO: %w", err)
	}
	return client, nil
}

// MinIOStore anexos en un bucket MinIO/S3 bajo {tenant}/{uuid}-{nombre}.
type MinIOStore struct {
	client ObjectClient
	bucket string
}

// NewMinIOStore construye el almacén.
func NewMinIOStore(client ObjectClient, bucket string) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket}
}

// Put sube el anexo y devuelve su referencia.
func (s *MinIOStore) Put(ctx context.Context, tenantID, name, contentType string, content []byte) (string, error) {
	ref := objectKey(tenantID, name)
	_, err := s.client.PutObject(ctx, s.bucket, ref, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("subir anexo %s: %w", name, err)
	}
	return ref, nil
}

// Exists indica si la referencia existe. Solo se aceptan referencias del tenant.
func (s *MinIOStore) Exists(ctx context.Context, tenantID, ref string) (bool, error) {
	if !strings.HasPrefix(ref, tenantID+"/") {
		return false, nil
	}
	_, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("consultar anexo %s: %w", ref, err)
	}
	return true, nil
}

// Delete elimina el anexo (limpieza de subidas cuyo recurso no se envió).
func (s *MinIOStore) Delete(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("eliminar anexo %s: %w", ref, err)
	}
	return nil
}

func objectKey(tenantID, name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "anexo"
	}
	return tenantID + "/" + uuid.NewString() + "-" + base
}

// ── Memoria ───────────────────────────────────────────────────────────────────

// MemoryStore anexos en memoria (desarrollo y pruebas).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore crea el almacén vacío.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, tenantID, name, _ string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := objectKey(tenantID, name)
	s.mu.Lock()
	s.objects[ref] = append([]byte(nil), content...)
	s.mu.Unlock()
	return ref, nil
}

func (s *MemoryStore) Exists(_ context.Context, tenantID, ref string) (bool, error) {
	if !strings.HasPrefix(ref, tenantID+"/") {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[ref]
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	delete(s.objects, ref)
	s.mu.Unlock()
	return nil
}

// Len cantidad de anexos guardados.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
