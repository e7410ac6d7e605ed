package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/telemetry/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var _ notes.ObjectStore = (*S3Store)(nil)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps objects in a single bucket, display URLs are presigned GETs.
type S3Store struct {
	client    s3API
	presigner presignAPI
	bucket    string
	urlTTL    time.Duration
}

func NewS3Store(client *s3.Client, bucket string, urlTTL time.Duration) *S3Store {
	return newS3Store(client, s3.NewPresignClient(client), bucket, urlTTL)
}

func newS3Store(client s3API, presigner presignAPI, bucket string, urlTTL time.Duration) *S3Store {
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		urlTTL:    urlTTL,
	}
}

func (s *S3Store) Upload(
	ctx context.Context,
	session *auth.Session,
	name, contentType string,
	data []byte,
) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "s3Store.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	key, err := ObjectKey(session, name)
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("object.key", key))
	span.SetAttributes(attribute.Int("object.size", len(data)))

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	log.Debugf("s3 store: object [%s] stored", key)

	return key, nil
}

func (s *S3Store) ResolveURL(ctx context.Context, session *auth.Session, key string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "s3Store.resolveURL")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := checkOwner(session, key); err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(s.urlTTL),
	)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}

	return req.URL, nil
}

// Remove deletes the object. S3 reports success for a missing key too.
func (s *S3Store) Remove(ctx context.Context, session *auth.Session, key string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "s3Store.remove")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := checkOwner(session, key); err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	log.Debugf("s3 store: object [%s] removed", key)

	return nil
}
