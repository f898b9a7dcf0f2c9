// Package storage provides the blob backends that hold uploaded files and
// their converted renditions. Keys are slash-separated paths relative to
// the backend's root (a directory or a bucket), e.g. "Ab3xYz_photo.png".
//
// Three backends are available: the local filesystem (through afero),
// MinIO, and S3-compatible object stores such as AWS S3 or Cloudflare R2.
package storage
