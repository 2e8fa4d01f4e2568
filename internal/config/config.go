package config

// Header constants.
const (
	HEADER_KEY_AUTHORIZATION = "Authorization"
)

const (
	ENV_KEY_APP_ENV   = "APP_ENV"
	ENV_KEY_PORT      = "PORT"
	ENV_KEY_LOG_LEVEL = "LOG_LEVEL"

	ENV_KEY_DB_DRIVER               = "DB_DRIVER"
	ENV_KEY_DB_DATABASE             = "DB_DATABASE"
	ENV_KEY_DB_PASSWORD             = "DB_PASSWORD"
	ENV_KEY_DB_USER                 = "DB_USER"
	ENV_KEY_DB_PORT                 = "DB_PORT"
	ENV_KEY_DB_HOST                 = "DB_HOST"
	ENV_KEY_DB_PATH                 = "DB_PATH"
	ENV_KEY_DB_MAX_OPEN_CONNECTIONS = "DB_MAX_OPEN_CONNECTIONS"
	ENV_KEY_DB_SLOW_QUERY_MS        = "DB_SLOW_QUERY_MS"

	ENV_KEY_AUTH_PROVIDER                     = "AUTH_PROVIDER"
	ENV_KEY_JWT_SECRET                        = "JWT_SECRET"
	ENV_KEY_FIREBASE_SERVICE_ACCOUNT_KEY_PATH = "FIREBASE_SERVICE_ACCOUNT_KEY_PATH"

	ENV_KEY_STORAGE_PROVIDER = "STORAGE_PROVIDER"
	ENV_KEY_UPLOAD_DIR       = "UPLOAD_DIR"
	ENV_KEY_STAGING_DIR      = "STAGING_DIR"
	ENV_KEY_PUBLIC_URL       = "PUBLIC_URL"

	ENV_KEY_MINIO_BUCKET      = "MINIO_BUCKET"
	ENV_KEY_MINIO_PUBLIC_PATH = "MINIO_PUBLIC_PATH"
	ENV_KEY_MINIO_ENDPOINT    = "MINIO_ENDPOINT"
	ENV_KEY_MINIO_ACCESS_KEY  = "MINIO_ACCESS_KEY"
	ENV_KEY_MINIO_SECRET_KEY  = "MINIO_SECRET_KEY"

	ENV_KEY_S3_BUCKET      = "S3_BUCKET"
	ENV_KEY_S3_PUBLIC_PATH = "S3_PUBLIC_PATH"
	ENV_KEY_S3_REGION      = "S3_REGION"

	ENV_KEY_REDIS_HOST     = "REDIS_HOST"
	ENV_KEY_REDIS_PORT     = "REDIS_PORT"
	ENV_KEY_REDIS_PASSWORD = "REDIS_PASSWORD"

	ENV_KEY_WORKER_CONCURRENCY   = "WORKER_CONCURRENCY"
	ENV_KEY_ORPHAN_GRACE_MINUTES = "ORPHAN_GRACE_MINUTES"

	ENV_KEY_OTEL_ENABLED      = "OTEL_ENABLED"
	ENV_KEY_OTEL_SERVICE_NAME = "OTEL_SERVICE_NAME"
)

const (
	AUTH_PROVIDER_JWT      = "jwt"
	AUTH_PROVIDER_FIREBASE = "firebase"

	STORAGE_PROVIDER_LOCAL = "local"
	STORAGE_PROVIDER_MINIO = "minio"
	STORAGE_PROVIDER_S3    = "s3"

	DB_DRIVER_POSTGRES = "postgres"
	DB_DRIVER_SQLITE   = "sqlite"
)

const (
	// Public route prefix for locally stored canonical images.
	UPLOADS_ROUTE = "/uploads"

	DEFAULT_UPLOAD_DIR           = "uploads"
	DEFAULT_ORPHAN_GRACE_MINUTES = 60
)

type ContextKey uint

const (
	_ ContextKey = iota
	CTX_KEY_USER_ID
)
