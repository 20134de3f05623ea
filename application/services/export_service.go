package services

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// ExportService downloads generated artifacts for a diagram
type ExportService struct {
	api    ports.ExportAPI
	logger *zap.Logger
}

// NewExportService creates a new export service
func NewExportService(api ports.ExportAPI, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{api: api, logger: logger}
}

// Download fetches the artifact and writes it into dir under its conventional
// file name. The file appears only once fully written.
func (s *ExportService) Download(ctx context.Context, kind ports.ExportKind, id valueobjects.DiagramID, dir string) (string, error) {
	if id.IsZero() {
		return "", pkgerrors.NewValidation("diagram id is required")
	}
	if _, err := ports.ParseExportKind(string(kind)); err != nil {
		return "", pkgerrors.NewValidation(err.Error())
	}

	body, err := s.api.Export(ctx, kind, id)
	if err != nil {
		return "", pkgerrors.NewRemote("export "+string(kind), err)
	}
	defer body.Close()

	final := filepath.Join(dir, kind.FileName())
	tmp, err := os.CreateTemp(dir, ".dclass-export-*")
	if err != nil {
		return "", pkgerrors.NewInternal("create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, body)
	if err != nil {
		cleanup()
		return "", pkgerrors.NewRemote("download "+string(kind), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", pkgerrors.NewInternal("close temp file", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", pkgerrors.NewInternal("move export into place", err)
	}

	s.logger.Info("Export downloaded",
		zap.String("diagramID", id.String()),
		zap.String("kind", string(kind)),
		zap.String("path", final),
		zap.Int64("bytes", n),
	)
	return final, nil
}
