package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"layoutaria/internal/metrics"
)

// Persistence reads and writes the document file. Save is only called from
// the store's writer goroutine, so it needs no locking of its own.
type Persistence struct {
	path   string
	logger *slog.Logger
}

// NewPersistence returns a Persistence for the document at path.
func NewPersistence(path string, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{path: path, logger: logger}
}

// Path is the canonical document location.
func (p *Persistence) Path() string { return p.path }

// Save writes doc to "<path>.tmp", syncs it and renames it over the canonical
// file, so a crash leaves either the old or the new document on disk.
func (p *Persistence) Save(doc *Document) error {
	start := time.Now()
	defer func() { metrics.StorePersistDuration.Observe(time.Since(start).Seconds()) }()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tmp := p.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

// Load returns the document on disk. A missing file is created with an empty
// document. A file that cannot be parsed is copied to
// "<path>.corrupted.<unix-millis>" and replaced with an empty document, so
// startup never fails on a damaged file. Legacy documents are upgraded and
// written back.
func (p *Persistence) Load(now time.Time) (*Document, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := NewDocument(now)
		if err := p.Save(doc); err != nil {
			return nil, fmt.Errorf("initialize document: %w", err)
		}
		p.logger.Info("store: created data file", "path", p.path)
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		quarantined, qerr := p.quarantine(now)
		if qerr != nil {
			return nil, fmt.Errorf("quarantine corrupt document: %w", qerr)
		}
		metrics.StoreQuarantinedTotal.Inc()
		p.logger.Error("store: data file corrupted, fallback created",
			"path", p.path, "quarantined", quarantined, "error", err)
		fresh := NewDocument(now)
		if err := p.Save(fresh); err != nil {
			return nil, fmt.Errorf("reinitialize document: %w", err)
		}
		return fresh, nil
	}

	if Upgrade(&doc, now) {
		if err := p.Save(&doc); err != nil {
			return nil, fmt.Errorf("save upgraded document: %w", err)
		}
		p.logger.Info("store: upgraded data file", "path", p.path, "schema_version", doc.Meta.SchemaVersion)
	}
	return &doc, nil
}

func (p *Persistence) quarantine(now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupted.%d", p.path, now.UnixMilli())
	src, err := os.Open(p.path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return "", err
	}
	return dst, out.Close()
}
