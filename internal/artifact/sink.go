package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
)

// Sink stores named result files
type Sink interface {
	Put(ctx context.Context, name string, body []byte) error
	// Location describes where name ends up, for logging.
	Location(name string) string
}

// DirSink writes files below a local directory
type DirSink struct {
	Dir string
}

// NewDirSink creates dir and returns a sink writing into it
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{Dir: dir}, nil
}

func (d *DirSink) Put(_ context.Context, name string, body []byte) error {
	if err := os.WriteFile(d.Location(name), body, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (d *DirSink) Location(name string) string {
	return filepath.Join(d.Dir, name)
}

// S3Sink uploads files to a bucket under a key prefix
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink builds an S3 client from the default credential chain. Endpoint
// and path-style addressing allow S3-compatible stores such as MinIO; extra
// option functions are applied last.
func NewS3Sink(ctx context.Context, cfg config.S3Config, optFns ...func(*s3.Options)) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket required", config.ErrInvalid)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	fns := []func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}
	client := s3.NewFromConfig(awsCfg, append(fns, optFns...)...)
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// WithPrefix returns a sink sharing the client whose keys are nested one level deeper
func (s *S3Sink) WithPrefix(sub string) *S3Sink {
	return &S3Sink{client: s.client, bucket: s.bucket, prefix: s.key(strings.Trim(sub, "/"))}
}

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Sink) Put(ctx context.Context, name string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.Location(name), err)
	}
	return nil
}

func (s *S3Sink) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}
