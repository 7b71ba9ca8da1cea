package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStore is the cold storage surface evidence artifacts are written
// to (§4.E "Evidence store. Large artifacts ... are stored at
// cold/{tenant}/{YYYY}/{MM}/{DD}/{audit_id}/{kind}.json in an object
// store with SSE-KMS, returning (content_hash=SHA-256, uri)").
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) (uri string, contentHash string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3ObjectStore implements ObjectStore against an S3-compatible bucket
// with server-side KMS encryption, grounded in kubernaut's go.mod
// AWS-SDK-v2 family (already used for bedrockruntime) extended to S3 for
// the object-store concern named in §6 "Environment (required) ...
// object-store endpoint + bucket, KMS key id".
type S3ObjectStore struct {
	client *s3.Client
	bucket string
	kmsKeyID string
}

// NewS3ObjectStore constructs an S3ObjectStore.
func NewS3ObjectStore(client *s3.Client, bucket, kmsKeyID string) *S3ObjectStore {
	return &S3ObjectStore{client: client, bucket: bucket, kmsKeyID: kmsKeyID}
}

// Put uploads body under key with SSE-KMS and returns its URI and
// content hash, alongside a SHA-256 sidecar object (§6 "Parquet
// partitions at cold/{tenant}/{YYYY-MM}/audit_records.parquet(.sha256)"
// uses the same sidecar convention as individual evidence artifacts).
func (s *S3ObjectStore) Put(ctx context.Context, key string, body []byte) (string, string, error) {
	sum := sha256.Sum256(body)
	contentHash := hex.EncodeToString(sum[:])

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
		SSEKMSKeyId:          aws.String(s.kmsKeyID),
	})
	if err != nil {
		return "", "", fmt.Errorf("audit: evidence put %s: %w", key, err)
	}

	sidecarKey := key + ".sha256"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(sidecarKey),
		Body:                 bytes.NewReader([]byte(contentHash)),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
		SSEKMSKeyId:          aws.String(s.kmsKeyID),
	})
	if err != nil {
		return "", "", fmt.Errorf("audit: evidence sidecar put %s: %w", sidecarKey, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	return uri, contentHash, nil
}

// Get downloads the object at key.
func (s *S3ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("audit: evidence get %s: %w", key, err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("audit: evidence read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// EvidenceWriter writes large per-investigation artifacts to cold
// storage and returns the EvidenceRef the caller attaches to its audit
// record. Failures are fail-open: the audit record is still written
// with an empty evidence_refs entry rather than blocking ingest (§4.E
// "Failures are fail-open -- the audit record is still written,
// evidence_refs is empty").
type EvidenceWriter struct {
	store ObjectStore
	log   *slog.Logger
}

// NewEvidenceWriter constructs an EvidenceWriter.
func NewEvidenceWriter(store ObjectStore, log *slog.Logger) *EvidenceWriter {
	if log == nil {
		log = slog.Default()
	}
	return &EvidenceWriter{store: store, log: log}
}

// Write stores artifact (full LLM prompts, responses, retrieval context,
// raw alert, investigation snapshot) at the canonical cold path and
// returns its EvidenceRef, or the zero value if the write failed.
func (w *EvidenceWriter) Write(ctx context.Context, tenantID, auditID, kind string, artifact any, at time.Time) (EvidenceRef, bool) {
	body, err := json.Marshal(artifact)
	if err != nil {
		w.log.Warn("audit: evidence marshal failed, continuing fail-open", "error", err, "kind", kind)
		return EvidenceRef{}, false
	}

	key := fmt.Sprintf("cold/%s/%04d/%02d/%02d/%s/%s.json",
		tenantID, at.Year(), at.Month(), at.Day(), auditID, kind)

	uri, hash, err := w.store.Put(ctx, key, body)
	if err != nil {
		w.log.Warn("audit: evidence write failed, continuing fail-open", "error", err, "kind", kind, "key", key)
		return EvidenceRef{}, false
	}
	return EvidenceRef{Kind: kind, URI: uri, ContentHash: hash}, true
}
