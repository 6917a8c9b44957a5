package storage

import (
	"fmt"
	"strings"
)

// NewStorage builds the staging backend from config. When cfg.Type is empty
// the flavor is inferred from the endpoint hostname.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	if cfg.Type == "" {
		cfg.Type = inferType(cfg.Endpoint)
	}
	return NewS3Storage(cfg)
}

func inferType(endpoint string) StorageType {
	host := strings.ToLower(endpoint)
	if strings.Contains(host, "r2.cloudflarestorage.com") {
		return StorageTypeR2
	}
	if strings.Contains(host, "amazonaws.com") {
		return StorageTypeS3
	}
	return StorageTypeS3Compatible
}
