package backup

import (
	"fmt"
	"io"
	"log"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/yourusername/minecraft-server-manager/internal/config"
)

// S3Destination stores backup archives in S3 or S3-compatible storage.
type S3Destination struct {
	cfg      *config.DestinationConfig
	client   *s3.S3
	uploader *s3manager.Uploader
}

func NewS3Destination(cfg *config.DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}
	// Custom endpoint for S3-compatible storage (MinIO, Spaces, ...)
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[S3Dest] initialized: bucket=%s region=%s", cfg.S3Bucket, cfg.S3Region)
	return &S3Destination{
		cfg:      cfg,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := path.Join(sd.cfg.Path, filename)
	log.Printf("[S3Dest] uploading s3://%s/%s (%d bytes)", sd.cfg.S3Bucket, key, sizeBytes)

	_, err := sd.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(sd.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	key := path.Join(sd.cfg.Path, filename)

	result, err := sd.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

func (sd *S3Destination) Delete(filename string) error {
	key := path.Join(sd.cfg.Path, filename)

	_, err := sd.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (sd *S3Destination) List() ([]RemoteFile, error) {
	prefix := sd.cfg.Path
	if prefix != "" {
		prefix += "/"
	}

	var files []RemoteFile
	err := sd.client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.cfg.S3Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if aws.StringValue(obj.Key) == prefix {
				continue
			}
			files = append(files, RemoteFile{
				Filename:  path.Base(aws.StringValue(obj.Key)),
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}
	return files, nil
}

func (sd *S3Destination) Type() string {
	return "s3"
}
