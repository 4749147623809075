package storage

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/services/storage/aws_client"
)

// NewFromConfig picks Cloudflare R2 when an account id is configured and
// AWS S3 (or any S3 compatible endpoint) otherwise.
func NewFromConfig(cfg *config.StorageConfig) interfaces.ObjectStorage {
	if cfg.UseR2() {
		return NewR2StorageService(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.AttachmentBucket)
	}
	return NewS3StorageService(cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKeyID, cfg.S3AccessKeySecret, cfg.AttachmentBucket)
}

func NewS3StorageService(awsRegion, endpoint, accessKeyID, accessKeySecret, bucketName string) interfaces.ObjectStorage {
	awsCfg := &aws.Config{
		Region:      aws.String(awsRegion),
		Credentials: credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
	}
	if endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	return NewBucketStorage(aws_client.NewBucket(awsCfg, bucketName))
}

func NewR2StorageService(accountID, accessKeyID, accessKeySecret, bucketName string) interfaces.ObjectStorage {
	return NewBucketStorage(aws_client.NewBucket(&aws.Config{
		Endpoint:         aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	}, bucketName))
}
