package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "femasflow/config"
	"femasflow/internal/models"
	"femasflow/logger"
)

// TickRecord is the parquet row layout for recorded ticks.
type TickRecord struct {
	Symbol     string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Exchange   string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64   `parquet:"name=timestamp, type=INT64"`
	LastPrice  float64 `parquet:"name=last_price, type=DOUBLE"`
	Volume     float64 `parquet:"name=volume, type=DOUBLE"`
	OpenPrice  float64 `parquet:"name=open_price, type=DOUBLE"`
	HighPrice  float64 `parquet:"name=high_price, type=DOUBLE"`
	LowPrice   float64 `parquet:"name=low_price, type=DOUBLE"`
	PreClose   float64 `parquet:"name=pre_close, type=DOUBLE"`
	LimitUp    float64 `parquet:"name=limit_up, type=DOUBLE"`
	LimitDown  float64 `parquet:"name=limit_down, type=DOUBLE"`
	BidPrice1  float64 `parquet:"name=bid_price_1, type=DOUBLE"`
	AskPrice1  float64 `parquet:"name=ask_price_1, type=DOUBLE"`
	BidVolume1 float64 `parquet:"name=bid_volume_1, type=DOUBLE"`
	AskVolume1 float64 `parquet:"name=ask_volume_1, type=DOUBLE"`
}

// memoryFileWriter implements the ParquetFile interface over a byte
// buffer so files can be built without touching disk.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; report the current end of buffer.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// TickRecorder buffers ticks per symbol and periodically flushes each
// buffer to S3 as one parquet file.
type TickRecorder struct {
	config   *appconfig.Config
	s3Client *s3.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
	buffer   map[string][]models.TickData
	ticker   *time.Ticker
}

// NewTickRecorder builds the S3 client from the recorder configuration.
// Static credentials take precedence when configured; otherwise the
// default AWS chain applies.
func NewTickRecorder(cfg *appconfig.Config) (*TickRecorder, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Recorder.S3.Region),
	}
	if cfg.Recorder.S3.AccessKeyID != "" && cfg.Recorder.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Recorder.S3.AccessKeyID,
				cfg.Recorder.S3.SecretAccessKey,
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

	recorder := &TickRecorder{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		wg:       &sync.WaitGroup{},
		log:      log,
		buffer:   make(map[string][]models.TickData),
	}

	log.WithComponent("tick_recorder").WithFields(logger.Fields{
		"bucket": cfg.Recorder.S3.Bucket,
		"region": cfg.Recorder.S3.Region,
		"prefix": cfg.Recorder.S3.Prefix,
	}).Info("tick recorder initialized")

	return recorder, nil
}

// Start launches the flush worker.
func (r *TickRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("tick recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.ticker = time.NewTicker(r.config.Recorder.FlushInterval())
	r.mu.Unlock()

	r.wg.Add(1)
	go r.flushWorker()

	return nil
}

// Record buffers one tick. When a symbol's buffer reaches the row cap
// it is flushed out of band so memory stays bounded between intervals.
func (r *TickRecorder) Record(tick models.TickData) {
	maxRows := r.config.Recorder.MaxRows

	r.mu.Lock()
	r.buffer[tick.Symbol] = append(r.buffer[tick.Symbol], tick)
	var full []models.TickData
	if maxRows > 0 && len(r.buffer[tick.Symbol]) >= maxRows {
		full = r.buffer[tick.Symbol]
		delete(r.buffer, tick.Symbol)
	}
	r.mu.Unlock()

	if full != nil {
		r.flushSymbol(tick.Symbol, full, "row_cap")
	}
}

func (r *TickRecorder) flushWorker() {
	defer r.wg.Done()

	log := r.log.WithComponent("tick_recorder").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-r.ctx.Done():
			r.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-r.ticker.C:
			r.flushBuffers("interval")
		}
	}
}

func (r *TickRecorder) flushBuffers(reason string) {
	r.mu.Lock()
	buffers := r.buffer
	r.buffer = make(map[string][]models.TickData)
	r.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	r.log.WithComponent("tick_recorder").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for symbol, ticks := range buffers {
		if len(ticks) == 0 {
			continue
		}
		r.flushSymbol(symbol, ticks, reason)
	}
}

func (r *TickRecorder) flushSymbol(symbol string, ticks []models.TickData, reason string) {
	log := r.log.WithComponent("tick_recorder").WithFields(logger.Fields{
		"batch_id": uuid.New().String(),
		"symbol":   symbol,
		"records":  len(ticks),
		"reason":   reason,
	})

	data, err := createParquetFile(ticks)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	key := r.objectKey(symbol, ticks[len(ticks)-1].Timestamp)
	if err := r.uploadToS3(key, data); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"bucket": r.config.Recorder.S3.Bucket,
			"s3_key": key,
		}).Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("tick batch uploaded")
}

func (r *TickRecorder) objectKey(symbol string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	filename := fmt.Sprintf("femas_ticks_%s_%s.parquet", symbol, ts.UTC().Format("20060102150405"))
	return path.Join(
		r.config.Recorder.S3.Prefix,
		fmt.Sprintf("symbol=%s", symbol),
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		filename,
	)
}

func createParquetFile(ticks []models.TickData) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(TickRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, tick := range ticks {
		record := TickRecord{
			Symbol:     tick.Symbol,
			Exchange:   string(tick.Exchange),
			Timestamp:  tick.Timestamp.UnixMilli(),
			LastPrice:  tick.LastPrice,
			Volume:     tick.Volume,
			OpenPrice:  tick.OpenPrice,
			HighPrice:  tick.HighPrice,
			LowPrice:   tick.LowPrice,
			PreClose:   tick.PreClose,
			LimitUp:    tick.LimitUp,
			LimitDown:  tick.LimitDown,
			BidPrice1:  tick.BidPrice1,
			AskPrice1:  tick.AskPrice1,
			BidVolume1: tick.BidVolume1,
			AskVolume1: tick.AskVolume1,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (r *TickRecorder) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.Recorder.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"femasflow-version": r.config.Femasflow.Version,
		},
	}

	ctx := context.WithoutCancel(r.ctx)
	if _, err := r.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", r.config.Recorder.S3.Bucket, err)
	}
	return nil
}

// Stop stops the flush ticker and waits for the worker, which flushes
// the remaining buffers on the way out.
func (r *TickRecorder) Stop() {
	r.mu.Lock()
	r.running = false
	if r.ticker != nil {
		r.ticker.Stop()
	}
	r.mu.Unlock()

	r.log.WithComponent("tick_recorder").Info("stopping tick recorder")
	r.wg.Wait()
	r.log.WithComponent("tick_recorder").Info("tick recorder stopped")
}
