// Package reliability provides the S3 snapshot backup service.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/events"
)

// BackupService archives the data directory's SQLite files and uploads the
// archive to an S3-compatible bucket.
type BackupService struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	keep     int
	dataDir  string
	bus      *events.Bus
	log      zerolog.Logger
}

// Manifest describes the files inside one backup archive.
type Manifest struct {
	CreatedAt time.Time      `json:"created_at"`
	Files     []ManifestFile `json:"files"`
}

// ManifestFile is one archived file with its integrity checksum.
type ManifestFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// BackupInfo describes one archive stored in the bucket.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// NewBackupService builds the service from backup configuration. Returns an
// error when the configuration is incomplete; callers should not construct the
// service at all when backups are disabled.
func NewBackupService(ctx context.Context, cfg *config.BackupConfig, dataDir string, bus *events.Bus, log zerolog.Logger) (*BackupService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backup bucket not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	keep := cfg.Keep
	if keep < 1 {
		keep = 14
	}

	return &BackupService{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		keep:     keep,
		dataDir:  dataDir,
		bus:      bus,
		log:      log.With().Str("service", "backup").Logger(),
	}, nil
}

// CreateBackup archives the data directory's database files, uploads the
// archive and prunes old backups past the retention count.
func (s *BackupService) CreateBackup(ctx context.Context) (*BackupInfo, error) {
	started := time.Now()
	s.log.Info().Str("bucket", s.bucket).Msg("Starting backup")

	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("vigil-backup-%d.tar.gz", started.UnixNano()))
	defer os.Remove(archivePath)

	manifest, err := ArchiveDatabases(s.dataDir, archivePath)
	if err != nil {
		s.publishFailure(err)
		return nil, fmt.Errorf("failed to create backup archive: %w", err)
	}
	if len(manifest.Files) == 0 {
		err := fmt.Errorf("no database files found in %s", s.dataDir)
		s.publishFailure(err)
		return nil, err
	}

	key := s.objectKey(started)
	file, err := os.Open(archivePath)
	if err != nil {
		s.publishFailure(err)
		return nil, fmt.Errorf("failed to open backup archive: %w", err)
	}
	defer file.Close()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/gzip"),
	}); err != nil {
		s.publishFailure(err)
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup archive: %w", err)
	}

	if err := s.rotate(ctx); err != nil {
		// Rotation failure keeps the fresh backup; tomorrow's run retries.
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}

	if s.bus != nil {
		s.bus.Publish(events.BackupCompleted, "reliability", &events.BackupCompletedData{
			Key:       key,
			SizeBytes: info.Size(),
			Duration:  time.Since(started).Seconds(),
		})
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Int("files", len(manifest.Files)).
		Dur("duration", time.Since(started)).
		Msg("Backup uploaded")

	return &BackupInfo{Key: key, Timestamp: started.UTC(), SizeBytes: info.Size()}, nil
}

// List returns the stored backups, newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".tar.gz") {
			continue
		}
		info := BackupInfo{Key: *obj.Key}
		if obj.LastModified != nil {
			info.Timestamp = *obj.LastModified
		}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		backups = append(backups, info)
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// rotate deletes backups beyond the retention count, oldest first.
func (s *BackupService) rotate(ctx context.Context) error {
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= s.keep {
		return nil
	}
	for _, stale := range backups[s.keep:] {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(stale.Key),
		}); err != nil {
			return fmt.Errorf("failed to delete stale backup %s: %w", stale.Key, err)
		}
		s.log.Info().Str("key", stale.Key).Msg("Deleted stale backup")
	}
	return nil
}

func (s *BackupService) objectKey(ts time.Time) string {
	return fmt.Sprintf("%s/%s.tar.gz", s.prefix, ts.UTC().Format("20060102-150405"))
}

func (s *BackupService) publishFailure(err error) {
	if s.bus != nil {
		s.bus.Publish(events.BackupFailed, "reliability", &events.BackupFailedData{Error: err.Error()})
	}
}

// ArchiveDatabases writes a tar.gz of every .db file directly under dataDir,
// plus a manifest.json entry with per-file sha256 checksums. Returns the
// manifest that was embedded in the archive.
func ArchiveDatabases(dataDir, archivePath string) (*Manifest, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	manifest := &Manifest{CreatedAt: time.Now().UTC()}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		paths = append(paths, filepath.Join(dataDir, entry.Name()))
	}
	sort.Strings(paths)

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	tw := tar.NewWriter(gzw)

	for _, path := range paths {
		file, err := manifestEntry(path)
		if err != nil {
			return nil, err
		}
		manifest.Files = append(manifest.Files, file)
		if err := addFile(tw, path, file.Name); err != nil {
			return nil, err
		}
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Mode:    0644,
		Size:    int64(len(manifestJSON)),
		ModTime: manifest.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize gzip: %w", err)
	}
	return manifest, nil
}

func manifestEntry(path string) (ManifestFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return ManifestFile{}, fmt.Errorf("failed to checksum %s: %w", path, err)
	}

	return ManifestFile{
		Name:      filepath.Base(path),
		SizeBytes: info.Size(),
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func addFile(tw *tar.Writer, path, nameInArchive string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", path, err)
	}
	header.Name = nameInArchive

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}
