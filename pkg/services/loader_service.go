package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/logging"
	"github.com/ticketsync/ticketsync/pkg/models"
	"github.com/ticketsync/ticketsync/pkg/receipt"
	"github.com/ticketsync/ticketsync/pkg/repositories"
)

// errorLogTimeFormat stamps error log file names.
const errorLogTimeFormat = "20060102T150405"

const maxErrorLogSuffix = 1000

// LoadResult summarizes a load pass.
type LoadResult struct {
	// Loaded holds tickets with at least one stored line.
	Loaded []int64
	Lines  int
	Errors []*models.LineError
	// ErrorLog is the path of the written error log, empty when none was written.
	ErrorLog string
}

// LoaderService parses converted tickets and stores their product lines.
type LoaderService interface {
	// Candidates returns the text files not yet represented in the store, by ticket ID.
	Candidates(ctx context.Context) ([]TicketFile, error)
	// Load parses and stores every candidate. Per-line failures are collected
	// in the result rather than returned.
	Load(ctx context.Context) (*LoadResult, error)
}

// LoaderOptions configure where the loader reads and reports.
type LoaderOptions struct {
	TicketsDir  string
	TextPattern string
	ErrorLogDir string
	Encoding    string
	StrictRows  bool
}

// LoaderOptionsFromConfig builds LoaderOptions from the loaded configuration.
func LoaderOptionsFromConfig(cfg *config.Config) LoaderOptions {
	return LoaderOptions{
		TicketsDir:  cfg.Storage.TicketsDir,
		TextPattern: cfg.Storage.TextPattern,
		ErrorLogDir: cfg.Storage.ErrorLogDir,
		Encoding:    cfg.Parser.Encoding,
		StrictRows:  cfg.Parser.StrictRows,
	}
}

type loaderService struct {
	products repositories.ProductRepository
	parser   *receipt.Parser
	opts     LoaderOptions
	now      func() time.Time
	logger   *zap.Logger
}

func NewLoaderService(products repositories.ProductRepository, parser *receipt.Parser, opts LoaderOptions, logger *zap.Logger) LoaderService {
	if opts.TextPattern == "" {
		opts.TextPattern = "*.txt"
	}
	return &loaderService{
		products: products,
		parser:   parser,
		opts:     opts,
		now:      time.Now,
		logger:   logger.Named("loader"),
	}
}

var _ LoaderService = (*loaderService)(nil)

func (s *loaderService) Candidates(ctx context.Context) ([]TicketFile, error) {
	parsed, err := s.products.KnownTicketIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load parsed tickets: %w", err)
	}

	files, err := ticketFiles(s.opts.TicketsDir, s.opts.TextPattern, s.logger)
	if err != nil {
		return nil, err
	}

	candidates := files[:0]
	for _, f := range files {
		if parsed.Has(f.TicketID) {
			continue
		}
		candidates = append(candidates, f)
	}
	return candidates, nil
}

func (s *loaderService) Load(ctx context.Context) (*LoadResult, error) {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Loading tickets", zap.Int("candidates", len(candidates)))

	result := &LoadResult{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.loadTicket(ctx, c, result); err != nil {
			return result, err
		}
	}

	if len(result.Errors) > 0 {
		path, err := s.writeErrorLog(result.Errors)
		if err != nil {
			s.logger.Error("Failed to write error log",
				zap.Int("errors", len(result.Errors)),
				zap.Error(err))
		} else {
			result.ErrorLog = path
			s.logger.Warn("Some product lines were not loaded",
				zap.Int("errors", len(result.Errors)),
				zap.String("error_log", path))
		}
	}

	s.logger.Info("Load complete",
		zap.Int("tickets", len(result.Loaded)),
		zap.Int("lines", result.Lines),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// loadTicket stores one ticket's lines, each in its own transaction. Only
// context cancellation is returned; everything else lands in result.Errors.
func (s *loaderService) loadTicket(ctx context.Context, c TicketFile, result *LoadResult) error {
	text, err := receipt.ReadFile(c.Path, s.opts.Encoding)
	if err != nil {
		result.Errors = append(result.Errors, &models.LineError{TicketID: c.TicketID, Err: err})
		return nil
	}

	table := s.parser.Parse(text)
	for _, m := range table.Malformed {
		s.logger.Warn("Malformed product row",
			zap.Int64("ticket_id", c.TicketID),
			zap.Int("line", m.Line),
			zap.Int("width", m.Width))
	}
	if s.opts.StrictRows && len(table.Malformed) > 0 {
		errs := make([]error, 0, len(table.Malformed))
		for _, m := range table.Malformed {
			errs = append(errs, m)
		}
		result.Errors = append(result.Errors, &models.LineError{TicketID: c.TicketID, Err: errors.Join(errs...)})
		return nil
	}

	lines := table.Lines(c.TicketID)
	if len(lines) == 0 {
		s.logger.Warn("No product rows found", zap.Int64("ticket_id", c.TicketID))
		result.Errors = append(result.Errors, &models.LineError{
			TicketID: c.TicketID,
			Err:      fmt.Errorf("%w in %s", apperrors.ErrNoProductRows, filepath.Base(c.Path)),
		})
		return nil
	}

	stored := 0
	for i, line := range lines {
		for _, hit := range receipt.CheckLine(line) {
			s.logger.Warn("Product line looks like SQL injection",
				zap.Int64("ticket_id", c.TicketID),
				zap.Int("line", i+1),
				zap.String("field", hit.Field),
				zap.String("fingerprint", hit.Fingerprint))
		}

		if err := s.products.InsertLine(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.Errors = append(result.Errors, &models.LineError{TicketID: c.TicketID, Line: i + 1, Err: err})
			continue
		}
		stored++
	}

	result.Lines += stored
	if stored > 0 {
		result.Loaded = append(result.Loaded, c.TicketID)
	}

	total, unparsed := receipt.SumTotals(lines)
	s.logger.Info("Loaded ticket",
		zap.Int64("ticket_id", c.TicketID),
		zap.Int("lines", stored),
		zap.Int("failed", len(lines)-stored),
		zap.String("total", total.StringFixed(2)),
		zap.Int("unparsed_totals", unparsed))
	return nil
}

// writeErrorLog writes one sanitized line per error to a timestamped file.
// A run finishing within the same second as another gets a numbered name
// instead of overwriting the earlier log.
func (s *loaderService) writeErrorLog(errs []*models.LineError) (string, error) {
	if err := os.MkdirAll(s.opts.ErrorLogDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create error log dir: %w", err)
	}

	var b strings.Builder
	for _, e := range errs {
		b.WriteString(logging.SanitizeError(e))
		b.WriteByte('\n')
	}

	base := "errors_" + s.now().Format(errorLogTimeFormat)
	for n := 0; n < maxErrorLogSuffix; n++ {
		name := base + ".log"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.log", base, n)
		}
		path := filepath.Join(s.opts.ErrorLogDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create error log: %w", err)
		}

		_, werr := f.WriteString(b.String())
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return "", fmt.Errorf("failed to write error log: %w", werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("failed to create error log: too many logs named %s", base)
}
