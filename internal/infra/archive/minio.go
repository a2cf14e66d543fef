package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// Config holds S3-compatible archive configuration.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Format    string `yaml:"format"` // csv (default) or parquet
}

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Enabled reports whether archiving is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// ObjectStore is the subset of object storage the archiver needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error
}

// Archiver uploads the combined table of each run.
type Archiver struct {
	store  ObjectStore
	bucket string
	format string
}

// New creates an archiver on top of any object store. An empty format means CSV.
func New(store ObjectStore, bucket, format string) (*Archiver, error) {
	switch format {
	case "":
		format = FormatCSV
	case FormatCSV, FormatParquet:
	default:
		return nil, fmt.Errorf("unknown archive format %q", format)
	}
	return &Archiver{store: store, bucket: bucket, format: format}, nil
}

// NewMinio creates an archiver backed by minio-go.
func NewMinio(ctx context.Context, cfg Config) (*Archiver, error) {
	store, err := newMinioStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(store, cfg.Bucket, cfg.Format)
}

// ContentType returns the MIME type of an archive format.
func ContentType(format string) string {
	if format == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}

// Key returns the object key of a run's archive.
func Key(runID, format string) string {
	return fmt.Sprintf("runs/%s.%s", runID, format)
}

// Archive uploads records under runs/<run-id>.<format> and returns the key.
func (a *Archiver) Archive(ctx context.Context, runID string, records []domain.Record) (string, error) {
	var (
		data []byte
		err  error
	)
	if a.format == FormatParquet {
		data, err = EncodeParquet(records)
	} else {
		data, err = EncodeCSV(records)
	}
	if err != nil {
		return "", err
	}
	key := Key(runID, a.format)
	if err := a.store.PutObject(ctx, a.bucket, key, ContentType(a.format), data); err != nil {
		return "", fmt.Errorf("failed to archive run %s: %w", runID, err)
	}
	return key, nil
}

// EncodeCSV renders records with the output header row.
func EncodeCSV(records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.OutputHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write(r.Row()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

type parquetRecord struct {
	Name  string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Email string `parquet:"name=email, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// EncodeParquet renders records as a single snappy-compressed Parquet file.
func EncodeParquet(records []domain.Record) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, new(parquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range records {
		if err := pw.Write(parquetRecord{Name: r.Name, Email: r.Email}); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("failed to finish parquet file: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

type minioStore struct {
	client *minio.Client
}

func newMinioStore(ctx context.Context, cfg Config) (*minioStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}

	// Accept both "host:port" and full URLs
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &minioStore{client: client}, nil
}

func (s *minioStore) PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
