package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// getGoogleClient initializes a Google Cloud Storage client.
// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func gcsBucket() (string, error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	return bucketName, nil
}

func localDir() string {
	dir := strings.TrimSpace(os.Getenv("STORAGE_LOCAL_DIR"))
	if dir == "" {
		dir = "storage"
	}
	return dir
}

// SaveDocumentFile stores the raw inbound document bytes and returns nothing;
// the object name doubles as the record's file reference.
func SaveDocumentFile(ctx context.Context, objectName string, data []byte, mimeType string) error {
	if GetStorageProvider() == StorageProviderLocal {
		full := filepath.Join(localDir(), filepath.FromSlash(objectName))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		return os.WriteFile(full, data, 0o644)
	}

	bucketName, err := gcsBucket()
	if err != nil {
		return err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = mimeType
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

// ReadDocumentFile loads the raw bytes back (reprocess re-extracts from the
// stored original, never from a client re-upload).
func ReadDocumentFile(ctx context.Context, objectName string) ([]byte, error) {
	if GetStorageProvider() == StorageProviderLocal {
		return os.ReadFile(filepath.Join(localDir(), filepath.FromSlash(objectName)))
	}

	bucketName, err := gcsBucket()
	if err != nil {
		return nil, err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", objectName, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func DocumentFileExists(ctx context.Context, objectName string) (bool, error) {
	if GetStorageProvider() == StorageProviderLocal {
		_, err := os.Stat(filepath.Join(localDir(), filepath.FromSlash(objectName)))
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	bucketName, err := gcsBucket()
	if err != nil {
		return false, err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	_, err = client.Bucket(bucketName).Object(objectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func DeleteDocumentFile(ctx context.Context, objectName string) error {
	if GetStorageProvider() == StorageProviderLocal {
		return os.Remove(filepath.Join(localDir(), filepath.FromSlash(objectName)))
	}

	bucketName, err := gcsBucket()
	if err != nil {
		return err
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Bucket(bucketName).Object(objectName).Delete(ctx)
}
