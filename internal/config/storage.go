package config

import "time"

// StorageConfig holds the S3-compatible bucket artwork images live in.
// Uploads are disabled when Bucket is empty.
type StorageConfig struct {
	Endpoint       string // custom endpoint for MinIO and friends; empty uses AWS
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UsePathStyle   bool
	PresignTTL     time.Duration
	MaxUploadBytes int64
	AllowedTypes   []string
}

func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		Endpoint:       envStr("S3_ENDPOINT", ""),
		Region:         envStr("S3_REGION", "us-east-1"),
		Bucket:         envStr("S3_BUCKET", ""),
		AccessKey:      envStr("S3_ACCESS_KEY", ""),
		SecretKey:      envStr("S3_SECRET_KEY", ""),
		UsePathStyle:   envBool("S3_USE_PATH_STYLE", false),
		PresignTTL:     envDur("S3_PRESIGN_TTL", 15*time.Minute),
		MaxUploadBytes: int64(envInt("UPLOAD_MAX_BYTES", 10<<20)),
		AllowedTypes:   envList("UPLOAD_ALLOWED_TYPES", "image/jpeg,image/png,image/webp,image/gif"),
	}
}

// Enabled reports whether a bucket is configured.
func (c StorageConfig) Enabled() bool { return c.Bucket != "" }
