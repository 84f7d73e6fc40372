package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/logging"
	"github.com/ticketsync/ticketsync/pkg/models"
)

// ConvertResult summarizes a conversion pass.
type ConvertResult struct {
	Converted []int64
	Failed    []int64
	// Skipped counts documents whose text form already existed.
	Skipped int
}

// ConverterService renders downloaded ticket documents to text.
type ConverterService interface {
	Convert(ctx context.Context) (*ConvertResult, error)
}

// commandRunner runs an external command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type converterService struct {
	dir    string
	cfg    config.ConverterConfig
	run    commandRunner
	logger *zap.Logger
}

func NewConverterService(dir string, cfg config.ConverterConfig, logger *zap.Logger) ConverterService {
	return &converterService{
		dir:    dir,
		cfg:    cfg,
		run:    execRunner,
		logger: logger.Named("converter"),
	}
}

var _ ConverterService = (*converterService)(nil)

func (s *converterService) Convert(ctx context.Context) (*ConvertResult, error) {
	result := &ConvertResult{}
	if s.cfg.Disabled {
		s.logger.Info("Conversion disabled")
		return result, nil
	}

	docs, err := ticketFiles(s.dir, "*.pdf", s.logger)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		txt := strings.TrimSuffix(doc.Path, filepath.Ext(doc.Path)) + ".txt"
		if _, err := os.Stat(txt); err == nil {
			result.Skipped++
			continue
		}

		args := append(append([]string{}, s.cfg.Args...), doc.Path, txt)
		out, err := s.run(ctx, s.cfg.Command, args...)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("Failed to convert ticket",
				zap.Int64("ticket_id", doc.TicketID),
				zap.String("output", logging.TruncateString(strings.TrimSpace(string(out)), logging.MaxErrorLogLength)),
				zap.Error(err))
			result.Failed = append(result.Failed, doc.TicketID)
			continue
		}

		result.Converted = append(result.Converted, doc.TicketID)
		s.logger.Info("Converted ticket", zap.Int64("ticket_id", doc.TicketID))
	}

	return result, nil
}

// TicketFile is a file in the tickets dir whose stem is a ticket ID.
type TicketFile struct {
	TicketID int64
	Path     string
}

// ticketFiles returns the files in dir matching pattern whose stem parses as a
// ticket ID, sorted by ID. A missing dir holds no files.
func ticketFiles(dir, pattern string, logger *zap.Logger) ([]TicketFile, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s: %w", pattern, dir, err)
	}

	files := make([]TicketFile, 0, len(matches))
	for _, m := range matches {
		stem := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		id, err := models.ParseTicketID(stem)
		if err != nil {
			logger.Debug("Ignoring file without a ticket id", zap.String("file", m))
			continue
		}
		files = append(files, TicketFile{TicketID: id, Path: filepath.Join(dir, filepath.FromSlash(m))})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].TicketID < files[j].TicketID })
	return files, nil
}
