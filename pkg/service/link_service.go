package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"shortlinks/pkg/cache"
	"shortlinks/pkg/logging"
	"shortlinks/pkg/storage"
)

const (
	maxURLLength     = 2048
	defaultQRTimeout = 3 * time.Second
)

// QRIssuer produces a QR image reference for a short URL. Issue has no error
// result: it must give up within its own timeout and return "" when no image
// could be produced. Creation never depends on it. Discard removes an image
// whose link was never stored; it is best-effort too.
type QRIssuer interface {
	Issue(ctx context.Context, code, shortURL string) string
	Discard(ctx context.Context, reference string)
}

type LinkServiceConfig struct {
	BaseURL string
	// Location fixes the calendar used for click days. Defaults to UTC.
	Location *time.Location
	QR       QRIssuer
	// QRTimeout bounds how long Create waits for QR. Defaults to 3s.
	QRTimeout time.Duration
	// BlockPrivateHosts rejects targets on loopback, private or link-local
	// addresses and localhost. Off by default.
	BlockPrivateHosts bool
	Now               func() time.Time
}

type LinkService struct {
	links   storage.LinkStorage
	ledger  storage.ClickLedger
	cache   cache.LinkCacheInterface
	gen     *Generator
	clicks  ClickSink
	logger  *logging.Logger
	qr      QRIssuer
	qrWait  time.Duration
	baseURL string
	loc     *time.Location
	now     func() time.Time

	blockPrivate bool
}

func NewLinkService(
	links storage.LinkStorage,
	ledger storage.ClickLedger,
	linkCache cache.LinkCacheInterface,
	gen *Generator,
	clicks ClickSink,
	logger *logging.Logger,
	cfg LinkServiceConfig,
) *LinkService {
	if linkCache == nil {
		linkCache = cache.NopCache{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.QRTimeout <= 0 {
		cfg.QRTimeout = defaultQRTimeout
	}
	return &LinkService{
		links:   links,
		ledger:  ledger,
		cache:   linkCache,
		gen:     gen,
		clicks:  clicks,
		logger:  logger,
		qr:      cfg.QR,
		qrWait:  cfg.QRTimeout,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		loc:     cfg.Location,
		now:     cfg.Now,

		blockPrivate: cfg.BlockPrivateHosts,
	}
}

type Schedule struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type CreateLinkRequest struct {
	URL      string    `json:"url" validate:"required,max=2048"`
	Title    string    `json:"title,omitempty" validate:"max=256"`
	Vanity   string    `json:"vanity,omitempty" validate:"max=50"`
	Schedule *Schedule `json:"schedule,omitempty"`
}

type CreateLinkResponse struct {
	ShortCode   string `json:"shortCode"`
	ShortURL    string `json:"shortUrl"`
	LongURL     string `json:"longUrl"`
	Title       string `json:"title"`
	QRReference string `json:"qrReference"`
}

// ShortURL is the public redirect URL for code.
func (s *LinkService) ShortURL(code string) string {
	return s.baseURL + "/r/" + code
}

// CreateLink validates req, settles the short code and stores the link.
//
// The vanity existence check and the save are not atomic: two concurrent
// creators of the same vanity can both pass the check, and the later save wins.
// Generated codes have the same window.
func (s *LinkService) CreateLink(ctx context.Context, req *CreateLinkRequest) (*CreateLinkResponse, error) {
	longURL, err := s.normalizeURL(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	window, err := scheduleWindow(req.Schedule)
	if err != nil {
		return nil, err
	}

	code, err := s.settleCode(ctx, ChooseCode(req.Vanity))
	if err != nil {
		s.logger.LogLinkOperation(ctx, "create", req.Vanity, false)
		return nil, err
	}

	link := &storage.ShortLink{
		Code:         code,
		LongURL:      longURL,
		Title:        strings.TrimSpace(req.Title),
		CreatedAt:    s.now().UTC(),
		ActiveWindow: window,
	}
	link.QRReference = s.issueQR(ctx, code)

	if err := s.links.Save(ctx, link); err != nil {
		if link.QRReference != "" {
			s.qr.Discard(context.WithoutCancel(ctx), link.QRReference)
		}
		return nil, s.storageFailure(ctx, "save", code, err)
	}
	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "code", code, "error", err)
	}

	s.logger.LogLinkOperation(ctx, "create", code, true)

	return &CreateLinkResponse{
		ShortCode:   link.Code,
		ShortURL:    s.ShortURL(link.Code),
		LongURL:     link.LongURL,
		Title:       link.Title,
		QRReference: link.QRReference,
	}, nil
}

func (s *LinkService) settleCode(ctx context.Context, choice CodeChoice) (string, error) {
	switch c := choice.(type) {
	case Vanity:
		if !ValidateVanity(c.Code) {
			return "", fmt.Errorf("%w: vanity must be 1-50 letters, digits, '_' or '-' and not reserved", ErrInvalidInput)
		}
		exists, err := s.links.Exists(ctx, c.Code)
		if err != nil {
			return "", s.storageFailure(ctx, "exists", c.Code, err)
		}
		if exists {
			return "", ErrConflict
		}
		return c.Code, nil
	case Generated:
		code, err := s.gen.Generate(ctx, s.links.Exists)
		if err != nil {
			if errors.Is(err, ErrExhausted) {
				s.logger.Error(ctx, "code generation exhausted", "error", err)
				return "", err
			}
			return "", s.storageFailure(ctx, "generate", "", err)
		}
		return code, nil
	default:
		return "", fmt.Errorf("%w: unknown code choice %T", ErrInvalidInput, choice)
	}
}

// issueQR waits at most qrWait for the issuer, whatever the issuer does.
func (s *LinkService) issueQR(ctx context.Context, code string) string {
	if s.qr == nil {
		return ""
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, s.qrWait)
	defer cancel()

	result := make(chan string, 1)
	go func() { result <- s.qr.Issue(ctx, code, s.ShortURL(code)) }()

	select {
	case ref := <-result:
		return ref
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			s.logger.Warn(ctx, "qr issue timed out", "code", code, "timeout", s.qrWait.String())
		} else {
			s.logger.Info(ctx, "qr issue cancelled", "code", code, "error", parent.Err())
		}
		return ""
	}
}

// Resolve returns the target URL for code and queues a click. A link outside
// its active window resolves as ErrNotFound.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return "", err
	}

	now := s.now()
	if !link.ActiveWindow.Contains(now) {
		s.logger.Info(ctx, "link outside active window", "code", code)
		return "", ErrNotFound
	}

	if s.clicks != nil {
		s.clicks.Record(ctx, code, now)
	}
	return link.LongURL, nil
}

func (s *LinkService) lookup(ctx context.Context, code string) (*storage.ShortLink, error) {
	cached, err := s.cache.Get(ctx, code)
	if err != nil {
		s.logger.Warn(ctx, "cache read failed", "code", code, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	link, err := s.links.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.storageFailure(ctx, "get", code, err)
	}
	if err := s.cache.Set(ctx, link); err != nil {
		s.logger.Warn(ctx, "cache write failed", "code", code, "error", err)
	}
	return link, nil
}

// GetLink returns the stored link, ignoring its active window.
func (s *LinkService) GetLink(ctx context.Context, code string) (*storage.ShortLink, error) {
	return s.lookup(ctx, code)
}

func (s *LinkService) ListLinks(ctx context.Context) ([]storage.ShortLink, error) {
	links, err := s.links.ListAll(ctx)
	if err != nil {
		return nil, s.storageFailure(ctx, "list", "", err)
	}
	return links, nil
}

func (s *LinkService) storageFailure(ctx context.Context, op, code string, err error) error {
	s.logger.Error(ctx, "storage operation failed",
		"operation", op,
		"code", code,
		"error", err,
	)
	return ErrStorageFailure
}

func (s *LinkService) normalizeURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > maxURLLength {
		return "", fmt.Errorf("%w: url longer than %d characters", ErrInvalidInput, maxURLLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		s.logger.LogURLValidation(ctx, false, "")
		return "", fmt.Errorf("%w: url must be an absolute URI", ErrInvalidInput)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme == "http" || scheme == "https") && parsed.Host == "" {
		s.logger.LogURLValidation(ctx, false, scheme)
		return "", fmt.Errorf("%w: %s url has no host", ErrInvalidInput, scheme)
	}
	s.logger.LogURLValidation(ctx, true, scheme)

	switch scheme {
	case "javascript", "file", "data", "vbscript":
		return "", fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidInput, parsed.Scheme)
	}

	if s.blockPrivate {
		if err := checkPublicHost(parsed.Hostname()); err != nil {
			return "", err
		}
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// checkPublicHost rejects loopback, private and link-local targets.
func checkPublicHost(host string) error {
	if host == "" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
			ip.IsMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: private, loopback or link-local addresses are not allowed", ErrInvalidInput)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: localhost is not allowed", ErrInvalidInput)
	}
	return nil
}

func scheduleWindow(s *Schedule) (*storage.Window, error) {
	if s == nil || (s.From == nil && s.To == nil) {
		return nil, nil
	}
	if s.From != nil && s.To != nil && s.To.Before(*s.From) {
		return nil, fmt.Errorf("%w: schedule ends before it starts", ErrInvalidInput)
	}
	w := &storage.Window{}
	if s.From != nil {
		f := s.From.UTC()
		w.From = &f
	}
	if s.To != nil {
		t := s.To.UTC()
		w.To = &t
	}
	return w, nil
}
