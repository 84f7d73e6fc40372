package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/browser"
	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/models"
	"github.com/ticketsync/ticketsync/pkg/repositories"
	"github.com/ticketsync/ticketsync/pkg/retry"
)

// DiscoveryResult summarizes one walk of the ticket list.
type DiscoveryResult struct {
	// Seen holds every ticket ID observed in the list, in list order.
	Seen []int64
	// New holds the tickets stored and downloaded by this walk.
	New []int64
	// Cycles counts scroll actions.
	Cycles int
}

// DiscoveryService walks the portal's ticket list and downloads unknown tickets.
type DiscoveryService interface {
	Discover(ctx context.Context) (*DiscoveryResult, error)
}

// DiscoveryOptions are the portal facts and limits a walk depends on.
type DiscoveryOptions struct {
	Selectors     config.SelectorConfig
	EndOfListText string
	PendingName   string

	LocatePolicy    *retry.Config
	MaxScrollCycles int
}

// DiscoveryOptionsFromConfig builds DiscoveryOptions from the loaded configuration.
func DiscoveryOptionsFromConfig(cfg *config.Config) DiscoveryOptions {
	return DiscoveryOptions{
		Selectors:       cfg.Portal.Selectors,
		EndOfListText:   cfg.Portal.EndOfListText,
		PendingName:     cfg.Download.PendingName,
		LocatePolicy:    retry.Fixed(cfg.Discovery.LocateInterval, cfg.Discovery.LocateAttempts),
		MaxScrollCycles: cfg.Discovery.MaxScrollCycles,
	}
}

type discoveryService struct {
	session browser.Session
	portal  *Portal
	tickets repositories.TicketRepository
	locator DownloadLocator
	opts    DiscoveryOptions
	logger  *zap.Logger
}

func NewDiscoveryService(
	session browser.Session,
	portal *Portal,
	tickets repositories.TicketRepository,
	locator DownloadLocator,
	opts DiscoveryOptions,
	logger *zap.Logger,
) DiscoveryService {
	return &discoveryService{
		session: session,
		portal:  portal,
		tickets: tickets,
		locator: locator,
		opts:    opts,
		logger:  logger.Named("discovery"),
	}
}

var _ DiscoveryService = (*discoveryService)(nil)

// walk holds the state of one Discover call.
type walk struct {
	known  models.TicketIDSet
	seen   models.TicketIDSet
	result *DiscoveryResult
}

func (s *discoveryService) Discover(ctx context.Context) (*DiscoveryResult, error) {
	known, err := s.tickets.KnownIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known tickets: %w", err)
	}
	s.logger.Info("Starting discovery", zap.Int("known_tickets", len(known)))

	if err := s.portal.Login(ctx); err != nil {
		return nil, err
	}
	if err := s.portal.OpenTickets(ctx); err != nil {
		return nil, err
	}

	w := &walk{
		known:  known,
		seen:   models.NewTicketIDSet(),
		result: &DiscoveryResult{},
	}

	for {
		if err := ctx.Err(); err != nil {
			return w.result, err
		}

		// Checked before the batch so the batch revealed by the last scroll
		// is still processed once the list reports its end.
		end, err := s.atEnd(ctx)
		if err != nil {
			return w.result, err
		}

		if err := s.processBatch(ctx, w); err != nil {
			return w.result, err
		}
		if end {
			break
		}

		if s.opts.MaxScrollCycles > 0 && w.result.Cycles >= s.opts.MaxScrollCycles {
			return w.result, fmt.Errorf("%w: end of ticket list not reached after %d scroll cycles",
				apperrors.ErrTimeout, w.result.Cycles)
		}
		if err := s.scroll(ctx); err != nil {
			return w.result, err
		}
		w.result.Cycles++

		s.logger.Info("Scrolled ticket list",
			zap.Int("cycle", w.result.Cycles),
			zap.Int("seen", len(w.result.Seen)),
			zap.Int("new", len(w.result.New)))
	}

	s.logger.Info("Discovery complete",
		zap.Int("seen", len(w.result.Seen)),
		zap.Int("new", len(w.result.New)),
		zap.Int("cycles", w.result.Cycles))
	return w.result, nil
}

func (s *discoveryService) atEnd(ctx context.Context) (bool, error) {
	text, err := s.session.Text(ctx, s.opts.Selectors.ListEnd)
	if err != nil {
		return false, fmt.Errorf("failed to read end of list marker: %w", err)
	}
	return strings.TrimSpace(text) == s.opts.EndOfListText, nil
}

// processBatch handles every item currently rendered. The list may reflow to
// the top after returning from a ticket, so the batch is always rescanned in full.
func (s *discoveryService) processBatch(ctx context.Context, w *walk) error {
	rawIDs, err := s.session.AttributeAll(ctx, s.opts.Selectors.ListItem, "id")
	if err != nil {
		return fmt.Errorf("failed to read ticket list: %w", err)
	}

	for _, raw := range rawIDs {
		id, err := models.ParseTicketID(raw)
		if err != nil {
			s.logger.Warn("Skipping list item with unexpected id",
				zap.String("id", raw),
				zap.Error(err))
			continue
		}

		if !w.seen.Has(id) {
			w.seen.Add(id)
			w.result.Seen = append(w.result.Seen, id)
		}
		if w.known.Has(id) {
			continue
		}

		w.known.Add(id)
		if err := s.tickets.Insert(ctx, id); err != nil {
			return fmt.Errorf("failed to store ticket %d: %w", id, err)
		}

		path, err := s.download(ctx, raw, id)
		if err != nil {
			return fmt.Errorf("failed to download ticket %d: %w", id, err)
		}
		w.result.New = append(w.result.New, id)

		s.logger.Info("Downloaded ticket",
			zap.Int64("ticket_id", id),
			zap.String("path", path))
	}
	return nil
}

func (s *discoveryService) download(ctx context.Context, raw string, id int64) (string, error) {
	item := browser.ByID(raw)

	if err := s.locate(ctx, item); err != nil {
		return "", err
	}
	if _, err := s.locator.Discard(s.opts.PendingName); err != nil {
		return "", err
	}
	if err := s.session.Click(ctx, item); err != nil {
		return "", err
	}

	if err := s.requestDownload(ctx); err != nil {
		if !errors.Is(err, apperrors.ErrElementNotFound) {
			return "", err
		}
		// The click sometimes lands without opening the ticket. One more try.
		s.logger.Warn("Ticket did not open, retrying", zap.Int64("ticket_id", id))
		if err := s.session.Click(ctx, item); err != nil {
			return "", err
		}
		if err := s.requestDownload(ctx); err != nil {
			return "", err
		}
	}

	path, err := s.locator.Finalize(ctx, s.opts.PendingName, id)
	if err != nil {
		return "", err
	}

	if err := s.session.Back(ctx); err != nil {
		return "", err
	}
	return path, nil
}

func (s *discoveryService) requestDownload(ctx context.Context) error {
	if err := s.session.Click(ctx, s.opts.Selectors.TicketMenu); err != nil {
		return err
	}
	return s.session.Click(ctx, s.opts.Selectors.DownloadItem)
}

// locate brings item into the rendered list, scrolling while the list has it
// virtualized away.
func (s *discoveryService) locate(ctx context.Context, item string) error {
	err := retry.Poll(ctx, s.opts.LocatePolicy, func() (bool, error) {
		ok, err := s.session.Exists(ctx, item)
		if err != nil || ok {
			return ok, err
		}
		s.logger.Debug("Ticket not rendered, scrolling", zap.String("selector", item))
		return false, s.scroll(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", item, err)
	}
	return s.session.MoveTo(ctx, item)
}

// scroll drags the end of list marker up to the list header, which makes the
// list fetch and render more items.
func (s *discoveryService) scroll(ctx context.Context) error {
	sel := s.opts.Selectors
	if err := s.session.Drag(ctx, sel.ListEnd, sel.ListHeader); err != nil {
		return fmt.Errorf("failed to scroll ticket list: %w", err)
	}
	return nil
}
