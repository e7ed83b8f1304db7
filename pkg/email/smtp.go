package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	jemail "github.com/jordan-wright/email"

	"securecard/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the SMTP breaker is open.
var ErrCircuitOpen = errors.New("smtp circuit open")

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay. Consecutive failures open a
// circuit breaker so a dead relay fails fast instead of stalling requests.
type SMTPSender struct {
	cfg     SMTPConfig
	logger  *slog.Logger
	breaker *circuit.Breaker
	send    func(e *jemail.Email, addr string, auth smtp.Auth) error

	cooldown  time.Duration
	mu        sync.Mutex
	nextProbe time.Time
}

type SMTPOption func(*SMTPSender)

func WithLogger(logger *slog.Logger) SMTPOption {
	return func(s *SMTPSender) { s.logger = logger }
}

func WithBreaker(b *circuit.Breaker) SMTPOption {
	return func(s *SMTPSender) { s.breaker = b }
}

// WithProbeInterval sets how often a single attempt is let through while the
// breaker is open.
func WithProbeInterval(d time.Duration) SMTPOption {
	return func(s *SMTPSender) { s.cooldown = d }
}

func NewSMTPSender(cfg SMTPConfig, opts ...SMTPOption) *SMTPSender {
	s := &SMTPSender{
		cfg:      cfg,
		logger:   slog.Default(),
		breaker:  circuit.New("smtp", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1)),
		cooldown: 30 * time.Second,
		send: func(e *jemail.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers msg. While the breaker is open one probe attempt per probe
// interval is let through so the sender recovers once the relay is back.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.breaker.IsOpen() && !s.allowProbe(time.Now()) {
		return ErrCircuitOpen
	}

	e := jemail.NewEmail()
	e.From = s.cfg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(e, addr, auth); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.scheduleProbe(time.Now())
			s.logger.WarnContext(ctx, "smtp circuit opened", "breaker", s.breaker.Name())
		}
		return fmt.Errorf("send mail: %w", err)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "smtp circuit closed", "breaker", s.breaker.Name())
	}
	return nil
}

func (s *SMTPSender) scheduleProbe(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProbe = now.Add(s.cooldown)
}

func (s *SMTPSender) allowProbe(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.nextProbe) {
		return false
	}
	s.nextProbe = now.Add(s.cooldown)
	return true
}
