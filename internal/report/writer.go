// Package report serializes the end-of-run metrics and failure documents to a
// local path or a gs:// object.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
	"github.com/yungbote/neurobridge-graphload/internal/platform/gcp"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

// ObjectPutter is the write side of gcp.ObjectStore.
type ObjectPutter interface {
	Put(ctx context.Context, uri gcp.ObjectURI, body []byte, contentType string) error
}

type Writer struct {
	objects ObjectPutter
	log     *logger.Logger
}

// NewWriter returns a Writer. objects may be nil when every destination is a
// local path.
func NewWriter(objects ObjectPutter, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{objects: objects, log: log.With("component", "ReportWriter")}
}

// WriteReports writes both documents. Both are attempted even if the first
// fails; the errors are joined.
func (w *Writer) WriteReports(ctx context.Context, metricsDest, failuresDest string, m runmetrics.Report, f failures.Report) error {
	var errs []error
	if metricsDest != "" {
		if err := w.Write(ctx, metricsDest, m); err != nil {
			errs = append(errs, fmt.Errorf("metrics report: %w", err))
		}
	}
	if failuresDest != "" {
		if err := w.Write(ctx, failuresDest, f); err != nil {
			errs = append(errs, fmt.Errorf("failure report: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Write encodes v as indented JSON and stores it at dest.
func (w *Writer) Write(ctx context.Context, dest string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	body = append(body, '\n')

	if gcp.IsObjectURI(dest) {
		uri, err := gcp.ParseObjectURI(dest)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if w.objects == nil {
			return fmt.Errorf("report: %s needs object storage, none configured", dest)
		}
		if err := w.objects.Put(ctx, uri, body, "application/json"); err != nil {
			return fmt.Errorf("report: upload %s: %w", dest, err)
		}
		w.log.Info("Report uploaded", "uri", dest, "bytes", len(body))
		return nil
	}

	if err := writeFileAtomic(dest, body); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	w.log.Info("Report written", "path", dest, "bytes", len(body))
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over path, so readers never see a partial document.
func writeFileAtomic(path string, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	tmpName = ""
	return nil
}
