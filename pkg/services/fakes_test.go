package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/browser"
	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/models"
)

const (
	testEndText  = "Tickets de los últimos 90 días."
	testMoreText = "Desliza para cargar más"
	testPending  = "ticket.pdf"
)

func testSelectors() config.SelectorConfig {
	return config.SelectorConfig{
		CookieAccept: "#onetrust-accept-btn-handler",
		Username:     "#login",
		Password:     "#password",
		Submit:       ".btn_generico_orange",
		ListItem:     ".panel-default",
		ListEnd:      ".pullUpLabel",
		ListHeader:   ".l10n-tickets",
		TicketMenu:   "#menu-puntos",
		DownloadItem: "#dropdown1",
	}
}

func testPortalConfig() config.PortalConfig {
	return config.PortalConfig{
		LoginURL:      "https://portal.test/auth/index",
		TicketsURL:    "https://portal.test/es/personal/tickets",
		TicketsFrame:  "https://frame.test/app/mytickets.html",
		LoginTitle:    "Consum",
		TicketsTitle:  "Tickets",
		EndOfListText: testEndText,
		Selectors:     testSelectors(),
	}
}

// fakeSession simulates the portal's virtualized ticket list. Only the first
// `visible` items are rendered; dragging renders pageSize more and going back
// from a ticket reflows the list to its first page.
type fakeSession struct {
	sel    config.SelectorConfig
	titles map[string]string
	url    string

	items     []string
	pageSize  int
	visible   int
	neverEnds bool
	// ghosts are listed by the list but can never be located.
	ghosts map[string]bool
	// failActivation counts clicks on an item that land without opening it.
	failActivation map[string]int

	downloadDir string

	detail   string
	menuOpen bool
	values   map[string]string

	drags     int
	downloads []string
	closed    bool
}

func newFakeSession(downloadDir string, pageSize int, items ...string) *fakeSession {
	p := testPortalConfig()
	s := &fakeSession{
		sel: p.Selectors,
		titles: map[string]string{
			p.LoginURL:     "Consum | Acceso",
			p.TicketsURL:   "Mundo Consum",
			p.TicketsFrame: "Mis Tickets",
		},
		items:          items,
		pageSize:       pageSize,
		ghosts:         map[string]bool{},
		failActivation: map[string]int{},
		downloadDir:    downloadDir,
		values:         map[string]string{},
	}
	s.visible = min(pageSize, len(items))
	return s
}

var _ browser.Session = (*fakeSession)(nil)

func notFound(sel string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrElementNotFound, sel)
}

func itemID(sel string) (string, bool) {
	if !strings.HasPrefix(sel, `[id="`) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(sel, `[id="`), `"]`), true
}

func (s *fakeSession) rendered(id string) bool {
	if s.ghosts[id] {
		return false
	}
	for i := 0; i < s.visible; i++ {
		if s.items[i] == id {
			return true
		}
	}
	return false
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.url = url
	return nil
}

func (s *fakeSession) Title(_ context.Context) (string, error) {
	return s.titles[s.url], nil
}

func (s *fakeSession) Click(_ context.Context, sel string) error {
	switch sel {
	case s.sel.CookieAccept, s.sel.Submit:
		return nil
	case s.sel.TicketMenu:
		if s.detail == "" {
			return notFound(sel)
		}
		s.menuOpen = true
		return nil
	case s.sel.DownloadItem:
		if !s.menuOpen {
			return notFound(sel)
		}
		s.menuOpen = false
		s.downloads = append(s.downloads, s.detail)
		return os.WriteFile(filepath.Join(s.downloadDir, testPending), []byte("%PDF-1.4 "+s.detail), 0o644)
	}

	id, ok := itemID(sel)
	if !ok || !s.rendered(id) {
		return notFound(sel)
	}
	if s.failActivation[id] > 0 {
		s.failActivation[id]--
		return nil
	}
	s.detail = id
	return nil
}

func (s *fakeSession) SetValue(_ context.Context, sel, value string) error {
	s.values[sel] = value
	return nil
}

func (s *fakeSession) Text(_ context.Context, sel string) (string, error) {
	if sel != s.sel.ListEnd {
		return "", notFound(sel)
	}
	if !s.neverEnds && s.visible >= len(s.items) {
		return "  " + testEndText + "\n", nil
	}
	return testMoreText, nil
}

func (s *fakeSession) Exists(_ context.Context, sel string) (bool, error) {
	id, ok := itemID(sel)
	if !ok {
		return false, nil
	}
	return s.rendered(id), nil
}

func (s *fakeSession) AttributeAll(_ context.Context, sel, attr string) ([]string, error) {
	if sel != s.sel.ListItem || attr != "id" {
		return nil, nil
	}
	return append([]string(nil), s.items[:s.visible]...), nil
}

func (s *fakeSession) MoveTo(_ context.Context, sel string) error {
	if id, ok := itemID(sel); ok && !s.rendered(id) {
		return notFound(sel)
	}
	return nil
}

func (s *fakeSession) Drag(_ context.Context, from, to string) error {
	s.drags++
	s.visible = min(s.visible+s.pageSize, len(s.items))
	return nil
}

func (s *fakeSession) Back(_ context.Context) error {
	s.detail = ""
	s.menuOpen = false
	s.visible = min(s.pageSize, len(s.items))
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeTicketRepo implements repositories.TicketRepository in memory.
type fakeTicketRepo struct {
	mu       sync.Mutex
	ids      models.TicketIDSet
	inserted []int64
	knownErr error
}

func newFakeTicketRepo(ids ...int64) *fakeTicketRepo {
	return &fakeTicketRepo{ids: models.NewTicketIDSet(ids...)}
}

func (r *fakeTicketRepo) KnownIDs(_ context.Context) (models.TicketIDSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.knownErr != nil {
		return nil, r.knownErr
	}
	out := models.NewTicketIDSet()
	for id := range r.ids {
		out.Add(id)
	}
	return out, nil
}

func (r *fakeTicketRepo) Insert(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids.Has(id) {
		return fmt.Errorf("failed to insert ticket %d: %w", id, apperrors.ErrDuplicateKey)
	}
	r.ids.Add(id)
	r.inserted = append(r.inserted, id)
	return nil
}

// fakeProductRepo implements repositories.ProductRepository in memory.
// fail decides whether the n-th (1-based) insert attempt for a ticket fails.
type fakeProductRepo struct {
	parsed   models.TicketIDSet
	stored   []*models.ProductLine
	attempts map[int64]int
	fail     func(ticketID int64, n int) error
	knownErr error
}

func newFakeProductRepo(parsed ...int64) *fakeProductRepo {
	return &fakeProductRepo{
		parsed:   models.NewTicketIDSet(parsed...),
		attempts: map[int64]int{},
	}
}

func (r *fakeProductRepo) KnownTicketIDs(_ context.Context) (models.TicketIDSet, error) {
	if r.knownErr != nil {
		return nil, r.knownErr
	}
	return r.parsed, nil
}

func (r *fakeProductRepo) InsertLine(_ context.Context, line *models.ProductLine) error {
	r.attempts[line.TicketID]++
	if r.fail != nil {
		if err := r.fail(line.TicketID, r.attempts[line.TicketID]); err != nil {
			return err
		}
	}
	r.stored = append(r.stored, line)
	return nil
}

func (r *fakeProductRepo) storedFor(ticketID int64) []*models.ProductLine {
	var out []*models.ProductLine
	for _, l := range r.stored {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	return out
}
