package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// ObjectPutter is the part of the S3 client the uploader needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures an Uploader
type Options struct {
	Bucket     string
	Region     string
	Prefix     string
	Endpoint   string // For S3-compatible services; enables path-style addressing
	MaxRetries int
}

// Uploader archives snapshots of the CSV file to S3. The local file is
// never modified.
type Uploader struct {
	client     ObjectPutter
	bucket     string
	prefix     string
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	log        *zap.Logger

	lastSize int64
}

// flyTokenRetriever implements stscreds.IdentityTokenRetriever for Fly.io OIDC
type flyTokenRetriever struct {
	socketPath string
	audience   string
}

// GetIdentityToken fetches an OIDC token from Fly.io's Unix socket API
func (f *flyTokenRetriever) GetIdentityToken() ([]byte, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", f.socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	reqBody, err := json.Marshal(map[string]string{"aud": f.audience})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := client.Post("http://localhost/v1/tokens/oidc", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	return token, nil
}

// New creates an uploader that assumes roleARN with a Fly.io OIDC token
func New(ctx context.Context, opts Options, roleARN string, log *zap.Logger) (*Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if roleARN != "" {
		credProvider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(cfg),
			roleARN,
			&flyTokenRetriever{
				socketPath: "/.fly/api",
				audience:   "sts.amazonaws.com",
			},
		)
		cfg.Credentials = aws.NewCredentialsCache(credProvider)
	}

	return NewWithClient(newS3Client(cfg, opts.Endpoint), opts, log), nil
}

// NewWithStaticCredentials creates an uploader using static credentials (legacy)
func NewWithStaticCredentials(ctx context.Context, opts Options, accessKeyID, secretAccessKey string, log *zap.Logger) (*Uploader, error) {
	credProvider := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return NewWithClient(newS3Client(cfg, opts.Endpoint), opts, log), nil
}

// NewWithClient creates an uploader around an existing S3 client
func NewWithClient(client ObjectPutter, opts Options, log *zap.Logger) *Uploader {
	return &Uploader{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		maxRetries: opts.MaxRetries,
		backoff:    time.Second,
		now:        time.Now,
		log:        log,
	}
}

func newS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Start uploads a snapshot of localPath every interval when it has grown,
// and once more on shutdown.
func (u *Uploader) Start(ctx context.Context, localPath string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := u.UploadIfChanged(ctx, localPath); err != nil {
				u.log.Warn("CSV snapshot upload failed", zap.String("path", localPath), zap.Error(err))
			}

		case <-ctx.Done():
			u.log.Info("Uploader shutting down, uploading final snapshot...")

			// ctx is already cancelled; give the final upload its own deadline
			finalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := u.UploadIfChanged(finalCtx, localPath); err != nil {
				u.log.Warn("Final CSV snapshot upload failed", zap.String("path", localPath), zap.Error(err))
			}
			cancel()

			return ctx.Err()
		}
	}
}

// UploadIfChanged uploads the complete lines of localPath if the file
// size differs from the last successful upload. A missing file is not
// an error: nothing has been logged yet.
func (u *Uploader) UploadIfChanged(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	// A row may be mid-append; only ship whole lines
	data = data[:bytes.LastIndexByte(data, '\n')+1]
	if int64(len(data)) == u.lastSize {
		return nil
	}

	key := generateS3Key(u.prefix, localPath, u.now())
	if err := u.uploadWithRetry(ctx, key, data); err != nil {
		return err
	}

	u.lastSize = int64(len(data))
	u.log.Info("Uploaded CSV snapshot",
		zap.String("bucket", u.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// uploadWithRetry uploads data with exponential backoff between attempts
func (u *Uploader) uploadWithRetry(ctx context.Context, key string, data []byte) error {
	var err error
	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("text/csv; charset=utf-8"),
		})
		if err == nil {
			return nil
		}

		if attempt < u.maxRetries {
			backoff := u.backoff * time.Duration(1<<uint(attempt))
			u.log.Warn("Upload attempt failed, retrying",
				zap.String("key", key),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("put object %s after %d attempts: %w", key, u.maxRetries+1, err)
}

// generateS3Key builds a dated key for a snapshot
// Input: speakerlog, /data/chat.csv, 2025-12-30 10:30
// Output: speakerlog/2025/12/30/chat_20251230_1030.csv
func generateS3Key(prefix, localPath string, t time.Time) string {
	t = t.UTC()
	base := filepath.Base(localPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".csv"
	}

	filename := fmt.Sprintf("%s_%s%s", name, t.Format("20060102_1504"), ext)
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", t.Year(), t.Month(), t.Day()), filename)
}
