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
)

// Portal drives the portal pages that lead to the ticket list.
type Portal struct {
	session browser.Session
	cfg     config.PortalConfig
	creds   config.CredentialsConfig
	logger  *zap.Logger
}

func NewPortal(session browser.Session, cfg config.PortalConfig, creds config.CredentialsConfig, logger *zap.Logger) *Portal {
	return &Portal{
		session: session,
		cfg:     cfg,
		creds:   creds,
		logger:  logger.Named("portal"),
	}
}

// Login signs in with the configured credentials.
func (p *Portal) Login(ctx context.Context) error {
	sel := p.cfg.Selectors

	if err := p.session.Navigate(ctx, p.cfg.LoginURL); err != nil {
		return err
	}
	if err := p.expectTitle(ctx, p.cfg.LoginTitle); err != nil {
		return err
	}

	// The consent banner is not shown to returning browsers.
	if err := p.session.Click(ctx, sel.CookieAccept); err != nil {
		if !errors.Is(err, apperrors.ErrElementNotFound) {
			return fmt.Errorf("failed to dismiss cookie banner: %w", err)
		}
		p.logger.Debug("No cookie banner")
	}

	if err := p.session.SetValue(ctx, sel.Username, p.creds.User); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	if err := p.session.SetValue(ctx, sel.Password, p.creds.Pass); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	if err := p.session.Click(ctx, sel.Submit); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	p.logger.Info("Logged in")
	return nil
}

// OpenTickets navigates to the ticket list.
func (p *Portal) OpenTickets(ctx context.Context) error {
	if err := p.session.Navigate(ctx, p.cfg.TicketsURL); err != nil {
		return err
	}
	// The list itself lives in a frame served from another host.
	if err := p.session.Navigate(ctx, p.cfg.TicketsFrame); err != nil {
		return err
	}
	if err := p.expectTitle(ctx, p.cfg.TicketsTitle); err != nil {
		return err
	}
	p.logger.Info("Opened ticket list")
	return nil
}

func (p *Portal) expectTitle(ctx context.Context, want string) error {
	title, err := p.session.Title(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(title, want) {
		return fmt.Errorf("%w: title %q does not contain %q", apperrors.ErrUnexpectedPage, title, want)
	}
	return nil
}
