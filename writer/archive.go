package writer

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "forecastflow/config"
	"forecastflow/logger"
	"forecastflow/models"
)

// ForecastRecord is the parquet row layout for archived forecasts.
type ForecastRecord struct {
	ForecastDate   string  `parquet:"name=forecast_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol         string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Method         string  `parquet:"name=method, type=BYTE_ARRAY, convertedtype=UTF8"`
	PredictedClose float64 `parquet:"name=predicted_close, type=DOUBLE"`
	ForecastDay    int32   `parquet:"name=forecast_day, type=INT32"`
	PriceChange    float64 `parquet:"name=price_change, type=DOUBLE"`
	PriceChangePct float64 `parquet:"name=price_change_pct, type=DOUBLE"`
	LowerBound     float64 `parquet:"name=lower_bound, type=DOUBLE"`
	UpperBound     float64 `parquet:"name=upper_bound, type=DOUBLE"`
	GeneratedAt    int64   `parquet:"name=generated_at, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface over a byte
// buffer so files are assembled in memory before upload.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// ArchiveWriter uploads each run's forecasts to S3 as snappy parquet,
// partitioned hive-style by method and forecast generation date.
type ArchiveWriter struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

func NewArchiveWriter(cfg *appconfig.Config) (*ArchiveWriter, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return &ArchiveWriter{config: cfg, s3Client: s3Client, log: log}, nil
}

// Archive writes one parquet object per method that produced results.
func (w *ArchiveWriter) Archive(ctx context.Context, runID string, results map[models.Method][]models.ForecastResult) error {
	now := time.Now().UTC()

	for _, method := range models.AllMethods() {
		rs := results[method]
		if len(rs) == 0 {
			continue
		}

		log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
			"run_id": runID,
			"method": method,
		})

		data, records, err := w.createParquetFile(method, rs)
		if err != nil {
			log.WithError(err).Error("failed to create parquet file")
			return err
		}

		key := w.generateS3Key(method, now)
		if err := w.uploadToS3(ctx, key, data, runID); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"bucket": w.config.Storage.S3.Bucket,
				"s3_key": key,
			}).Error("failed to upload to S3")
			return err
		}

		log.WithFields(logger.Fields{
			"s3_key":    key,
			"records":   records,
			"file_size": len(data),
		}).Info("method archive uploaded")
	}
	return nil
}

func (w *ArchiveWriter) generateS3Key(method models.Method, now time.Time) string {
	parts := []string{}
	if w.config.Storage.S3.Prefix != "" {
		parts = append(parts, w.config.Storage.S3.Prefix)
	}
	parts = append(parts,
		fmt.Sprintf("method=%s", method),
		fmt.Sprintf("year=%04d", now.Year()),
		fmt.Sprintf("month=%02d", now.Month()),
		fmt.Sprintf("day=%02d", now.Day()),
		fmt.Sprintf("forecast_%s_%s.parquet", method, now.Format("20060102150405")),
	)
	return filepath.ToSlash(filepath.Join(parts...))
}

func (w *ArchiveWriter) createParquetFile(method models.Method, results []models.ForecastResult) ([]byte, int, error) {
	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(ForecastRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	records := 0
	for _, r := range results {
		for _, p := range r.Points {
			record := ForecastRecord{
				ForecastDate:   p.Timestamp.Format("2006-01-02"),
				Symbol:         p.Symbol,
				Method:         method.String(),
				PredictedClose: p.PredictedClose,
				ForecastDay:    int32(p.ForecastDay),
				PriceChange:    p.PriceChange,
				PriceChangePct: nanToZero(p.PriceChangePct),
				LowerBound:     derefOrZero(p.LowerBound),
				UpperBound:     derefOrZero(p.UpperBound),
				GeneratedAt:    r.GeneratedAt.UnixMilli(),
			}
			if err := pw.Write(record); err != nil {
				pw.WriteStop()
				return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
			}
			records++
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), records, nil
}

func (w *ArchiveWriter) uploadToS3(ctx context.Context, key string, data []byte, runID string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":         "parquet",
			"run-id":               runID,
			"forecastflow-version": w.config.Forecastflow.Version,
		},
	}

	_, err := w.s3Client.PutObject(context.WithoutCancel(ctx), input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func derefOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
