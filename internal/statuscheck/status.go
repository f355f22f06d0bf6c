// Package statuscheck aggregates dependency health for the dashboard and the
// readiness endpoint.
package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/local/fileconverter/internal/config"
	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/source"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the conversion dependencies.
type Checker struct {
	redis      RedisPinger
	s3cfg      config.S3Config
	tempRoot   string
	free       diskspace.FreeSpace
	convertMin int64
	purgeBelow int64
}

// Options configures the Checker.
type Options struct {
	Redis      RedisPinger
	S3         config.S3Config
	TempRoot   string
	Free       diskspace.FreeSpace
	Thresholds diskspace.Thresholds
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses for the dashboard.
type Summary struct {
	LibreOffice Status `json:"libreoffice"`
	TempRoot    Status `json:"temp_root"`
	Disk        Status `json:"disk"`
	Redis       Status `json:"redis"`
	S3          Status `json:"s3"`
}

// OK reports whether every required subsystem is healthy. Optional
// subsystems (Redis, S3) count only when configured.
func (s Summary) OK() bool {
	return s.LibreOffice.OK && s.TempRoot.OK && s.Disk.OK && s.Redis.OK && s.S3.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:      opts.Redis,
		s3cfg:      opts.S3,
		tempRoot:   opts.TempRoot,
		free:       opts.Free,
		convertMin: opts.Thresholds.ConvertMinFree,
		purgeBelow: opts.Thresholds.PurgeBelow,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		LibreOffice: c.checkLibreOffice(),
		TempRoot:    c.checkTempRoot(),
		Disk:        c.checkDisk(),
		Redis:       c.checkRedis(ctx),
		S3:          c.checkS3(ctx),
	}
}

func (c *Checker) checkLibreOffice() Status {
	if _, err := exec.LookPath("libreoffice"); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

// checkTempRoot proves the root is writable, not just present.
func (c *Checker) checkTempRoot() Status {
	probe := filepath.Join(c.tempRoot, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	os.Remove(probe)
	return Status{OK: true, Message: "Writable"}
}

func (c *Checker) checkDisk() Status {
	free, err := c.free.FreeBytes()
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	msg := fmt.Sprintf("%.2f GB free", float64(free)/diskspace.GiB)
	switch {
	case free < c.purgeBelow:
		return Status{OK: false, Message: msg + " (below purge threshold)"}
	case free < c.convertMin:
		return Status{OK: false, Message: msg + " (below conversion threshold)"}
	}
	return Status{OK: true, Message: msg}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured (in-memory history)"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3cfg.Bucket == "" {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cli, err := source.NewS3Client(ctx, c.s3cfg)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if _, err := cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3cfg.Bucket}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
