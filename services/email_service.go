package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
)

// ErrMailerDisabled is returned when no mail transport is configured.
var ErrMailerDisabled = errors.New("email is not configured")

// Notification is a fully rendered email.
type Notification struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers rendered notifications.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
	// Verify checks the transport is usable without sending anything.
	Verify(ctx context.Context) error
	Name() string
}

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

func newEmailMetrics(reg prometheus.Registerer, provider string) *EmailMetrics {
	labels := prometheus.Labels{"provider": provider}
	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "portfolio_email_send_duration_seconds",
			Help:        "Time taken to send emails",
			Buckets:     []float64{.1, .25, .5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "portfolio_email_errors_total",
			Help:        "Total number of email sending errors",
			ConstLabels: labels,
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "portfolio_emails_sent_total",
			Help:        "Total number of emails sent",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)
	return metrics
}

// observe records the outcome of one send attempt.
func (m *EmailMetrics) observe(start time.Time, err error) {
	m.sendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.errorCount.Inc()
		return
	}
	m.sentCount.Inc()
}

// NewMailer builds the transport selected by cfg.Provider.
func NewMailer(cfg config.EmailConfig, reg prometheus.Registerer) Mailer {
	switch cfg.Provider {
	case config.EmailProviderResend:
		return NewResendMailer(cfg, reg)
	case config.EmailProviderSMTP:
		return NewSMTPMailer(cfg, reg)
	default:
		return NoopMailer{}
	}
}

func formatFrom(cfg config.EmailConfig) string {
	if cfg.FromName == "" {
		return cfg.FromAddress
	}
	return (&mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}).String()
}

// ResendMailer sends through the Resend HTTP API.
type ResendMailer struct {
	config  config.EmailConfig
	client  *resend.Client
	metrics *EmailMetrics
}

func NewResendMailer(cfg config.EmailConfig, reg prometheus.Registerer) *ResendMailer {
	logger.GetLogger().Infow("Initializing Resend mailer",
		"from", logger.MaskEmail(cfg.FromAddress),
		"apiKey", logger.MaskSecret(cfg.ResendAPIKey))
	return &ResendMailer{
		config:  cfg,
		client:  resend.NewClient(cfg.ResendAPIKey),
		metrics: newEmailMetrics(reg, config.EmailProviderResend),
	}
}

func (s *ResendMailer) Name() string { return config.EmailProviderResend }

func (s *ResendMailer) Verify(_ context.Context) error {
	if s.config.ResendAPIKey == "" {
		return errors.New("resend api key is empty")
	}
	if s.config.FromAddress == "" {
		return errors.New("from address is empty")
	}
	return nil
}

func (s *ResendMailer) Send(ctx context.Context, n Notification) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(start, err) }()

	params := &resend.SendEmailRequest{
		From:    formatFrom(s.config),
		To:      []string{n.To},
		Subject: n.Subject,
		Html:    n.HTML,
		Text:    n.Text,
	}
	if n.ReplyTo != "" {
		params.ReplyTo = n.ReplyTo
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

// SMTPMailer sends through an SMTP relay such as Gmail.
type SMTPMailer struct {
	config  config.EmailConfig
	addr    string
	dialer  net.Dialer
	now     func() time.Time
	metrics *EmailMetrics

	// negotiate turns a dialed connection into a client ready for AUTH.
	negotiate func(conn net.Conn) (*smtp.Client, error)
}

func NewSMTPMailer(cfg config.EmailConfig, reg prometheus.Registerer) *SMTPMailer {
	logger.GetLogger().Infow("Initializing SMTP mailer",
		"host", cfg.SMTPHost,
		"port", cfg.SMTPPort,
		"username", logger.MaskEmail(cfg.SMTPUsername))

	s := &SMTPMailer{
		config:  cfg,
		addr:    net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		dialer:  net.Dialer{Timeout: cfg.SendTimeout()},
		now:     time.Now,
		metrics: newEmailMetrics(reg, config.EmailProviderSMTP),
	}
	s.negotiate = s.negotiateTLS
	return s
}

func (s *SMTPMailer) Name() string { return config.EmailProviderSMTP }

func (s *SMTPMailer) auth() sasl.Client {
	if s.config.SMTPUsername == "" {
		return nil
	}
	return sasl.NewPlainClient("", s.config.SMTPUsername, s.config.SMTPPassword)
}

func (s *SMTPMailer) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: s.config.SMTPHost, MinVersion: tls.VersionTLS12}
}

// negotiateTLS uses implicit TLS on port 465 and STARTTLS everywhere else.
func (s *SMTPMailer) negotiateTLS(conn net.Conn) (*smtp.Client, error) {
	if s.config.SMTPPort == 465 {
		return smtp.NewClient(tls.Client(conn, s.tlsConfig())), nil
	}
	c, err := smtp.NewClientStartTLS(conn, s.tlsConfig())
	if err != nil {
		return nil, fmt.Errorf("smtp starttls failed: %w", err)
	}
	return c, nil
}

// session dials the relay, authenticates, runs fn and quits. The connection
// is closed as soon as ctx ends, which unblocks any pending read or write.
func (s *SMTPMailer) session(ctx context.Context, fn func(c *smtp.Client) error) (err error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
	}()

	c, err := s.negotiate(conn)
	if err != nil {
		return err
	}
	if timeout := s.config.SendTimeout(); timeout > 0 {
		c.CommandTimeout = timeout
		c.SubmissionTimeout = timeout
	}

	if a := s.auth(); a != nil {
		if err := c.Auth(a); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if fn != nil {
		if err := fn(c); err != nil {
			return err
		}
	}
	return c.Quit()
}

// Verify opens a session and authenticates without sending anything.
func (s *SMTPMailer) Verify(ctx context.Context) error {
	return s.session(ctx, nil)
}

func (s *SMTPMailer) Send(ctx context.Context, n Notification) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(start, err) }()

	msg, err := s.compose(n)
	if err != nil {
		return err
	}

	err = s.session(ctx, func(c *smtp.Client) error {
		return c.SendMail(s.config.FromAddress, []string{n.To}, bytes.NewReader(msg))
	})
	if err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

// compose renders n as a multipart/alternative RFC 5322 message.
func (s *SMTPMailer) compose(n Notification) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: s.config.FromName, Address: s.config.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: n.To}})
	if n.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: n.ReplyTo}})
	}
	h.SetSubject(n.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create message body: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", n.Text},
		{"text/html", n.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NoopMailer is used when email is disabled.
type NoopMailer struct{}

func (NoopMailer) Name() string { return config.EmailProviderNone }

func (NoopMailer) Verify(context.Context) error { return ErrMailerDisabled }

func (NoopMailer) Send(context.Context, Notification) error { return ErrMailerDisabled }
