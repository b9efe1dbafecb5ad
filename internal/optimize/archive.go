package optimize

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver keeps a copy of the original asset bytes before transcoding,
// so a merchant can recover the source after replacing it with the
// derivative. Archiving is best-effort; the pipeline logs and continues
// when a put fails.
type S3Archiver struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func (a *S3Archiver) ArchiveOriginal(ctx context.Context, shop, mediaID string, data []byte) error {
	suffix := mediaID
	if i := strings.LastIndex(suffix, "/"); i >= 0 {
		suffix = suffix[i+1:]
	}
	key := fmt.Sprintf("%s%s/%s-%d.bin", a.Prefix, shop, suffix, time.Now().UTC().UnixNano())

	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("archive original to s3://%s/%s: %w", a.Bucket, key, err)
	}
	return nil
}
