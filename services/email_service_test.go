package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Mock Resend client
type mockEmailsService struct {
	mock.Mock
}

func (m *mockEmailsService) Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Update(params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) UpdateWithContext(ctx context.Context, params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Cancel(id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) CancelWithContext(ctx context.Context, id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Get(id string) (*resend.Email, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

func (m *mockEmailsService) GetWithContext(ctx context.Context, id string) (*resend.Email, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

func testGetCounterValue(counter prometheus.Counter) float64 {
	var m dto.Metric
	_ = counter.Write(&m)
	return m.GetCounter().GetValue()
}

func testEmailConfig(provider string) config.EmailConfig {
	return config.EmailConfig{
		Provider:     provider,
		FromName:     "Matrix Portfolio",
		FromAddress:  "owner@example.com",
		ResendAPIKey: "re_test_key_123456",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "owner@example.com",
		SMTPPassword: "app-password",
	}
}

func testNotification() Notification {
	return Notification{
		To:      "owner@example.com",
		ReplyTo: "ada@example.com",
		Subject: "New Portfolio Contact",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
	}
}

func TestNewMailer(t *testing.T) {
	assert.IsType(t, &ResendMailer{}, NewMailer(testEmailConfig(config.EmailProviderResend), prometheus.NewRegistry()))
	assert.IsType(t, &SMTPMailer{}, NewMailer(testEmailConfig(config.EmailProviderSMTP), prometheus.NewRegistry()))
	assert.IsType(t, NoopMailer{}, NewMailer(testEmailConfig(config.EmailProviderNone), prometheus.NewRegistry()))
	assert.IsType(t, NoopMailer{}, NewMailer(config.EmailConfig{}, prometheus.NewRegistry()))
}

func TestResendMailer_Send(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mockEmailsService)
		expectError bool
	}{
		{
			name: "successful email send",
			setupMock: func(m *mockEmailsService) {
				m.On("SendWithContext", mock.Anything, mock.MatchedBy(func(p *resend.SendEmailRequest) bool {
					return p.From == `"Matrix Portfolio" <owner@example.com>` &&
						len(p.To) == 1 && p.To[0] == "owner@example.com" &&
						p.ReplyTo == "ada@example.com" &&
						p.Subject == "New Portfolio Contact" &&
						p.Html == "<p>Hello</p>" && p.Text == "Hello"
				})).Return(&resend.SendEmailResponse{Id: "test-id"}, nil)
			},
		},
		{
			name: "failed email send",
			setupMock: func(m *mockEmailsService) {
				m.On("SendWithContext", mock.Anything, mock.AnythingOfType("*resend.SendEmailRequest")).
					Return(nil, assert.AnError)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockEmails := &mockEmailsService{}
			tt.setupMock(mockEmails)

			mailer := NewResendMailer(testEmailConfig(config.EmailProviderResend), prometheus.NewRegistry())
			mailer.client.Emails = mockEmails

			err := mailer.Send(context.Background(), testNotification())
			if tt.expectError {
				assert.ErrorIs(t, err, assert.AnError)
				assert.Equal(t, float64(1), testGetCounterValue(mailer.metrics.errorCount))
				assert.Equal(t, float64(0), testGetCounterValue(mailer.metrics.sentCount))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, float64(1), testGetCounterValue(mailer.metrics.sentCount))
			}
			mockEmails.AssertExpectations(t)
		})
	}
}

func TestResendMailer_Verify(t *testing.T) {
	cfg := testEmailConfig(config.EmailProviderResend)
	assert.NoError(t, NewResendMailer(cfg, prometheus.NewRegistry()).Verify(context.Background()))

	cfg.ResendAPIKey = ""
	assert.Error(t, NewResendMailer(cfg, prometheus.NewRegistry()).Verify(context.Background()))
}

type capturedMail struct {
	username string
	from     string
	to       []string
	body     []byte
}

// testSMTPBackend is an in-process relay that records what it receives.
type testSMTPBackend struct {
	mu      sync.Mutex
	mails   []capturedMail
	rcptErr error
}

func (b *testSMTPBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &testSMTPSession{backend: b}, nil
}

func (b *testSMTPBackend) received() []capturedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedMail(nil), b.mails...)
}

type testSMTPSession struct {
	backend *testSMTPBackend
	current capturedMail
}

func (s *testSMTPSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *testSMTPSession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if password != "app-password" {
			return errors.New("invalid credentials")
		}
		s.current.username = username
		return nil
	}), nil
}

func (s *testSMTPSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *testSMTPSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.rcptErr != nil {
		return s.backend.rcptErr
	}
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *testSMTPSession) Data(r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.body = body
	s.backend.mu.Lock()
	s.backend.mails = append(s.backend.mails, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSMTPSession) Reset()        { s.current.to = nil }
func (s *testSMTPSession) Logout() error { return nil }

// newTestSMTPMailer points an SMTPMailer at a plaintext in-process relay.
func newTestSMTPMailer(t *testing.T, cfg config.EmailConfig) (*SMTPMailer, *testSMTPBackend) {
	t.Helper()

	backend := &testSMTPBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ErrorLog = log.New(io.Discard, "", 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	mailer := NewSMTPMailer(cfg, prometheus.NewRegistry())
	mailer.addr = ln.Addr().String()
	mailer.now = func() time.Time { return time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) }
	mailer.negotiate = func(conn net.Conn) (*smtp.Client, error) { return smtp.NewClient(conn), nil }
	return mailer, backend
}

func TestSMTPMailer_Send(t *testing.T) {
	mailer, backend := newTestSMTPMailer(t, testEmailConfig(config.EmailProviderSMTP))

	require.NoError(t, mailer.Send(context.Background(), testNotification()))

	mails := backend.received()
	require.Len(t, mails, 1)
	got := mails[0]
	assert.Equal(t, "owner@example.com", got.username)
	assert.Equal(t, "owner@example.com", got.from)
	assert.Equal(t, []string{"owner@example.com"}, got.to)
	assert.Equal(t, float64(1), testGetCounterValue(mailer.metrics.sentCount))

	mr, err := mail.CreateReader(bytes.NewReader(got.body))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "New Portfolio Contact", subject)

	replyTo, err := mr.Header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "ada@example.com", replyTo[0].Address)

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)))

	var contentTypes []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			contentTypes = append(contentTypes, ct)
			body, _ := io.ReadAll(p.Body)
			if ct == "text/html" {
				assert.Equal(t, "<p>Hello</p>", strings.TrimSpace(string(body)))
			}
		}
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, contentTypes)
}

func TestSMTPMailer_SendFailure(t *testing.T) {
	mailer, backend := newTestSMTPMailer(t, testEmailConfig(config.EmailProviderSMTP))
	backend.rcptErr = &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"}

	err := mailer.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
	assert.Empty(t, backend.received())
	assert.Equal(t, float64(1), testGetCounterValue(mailer.metrics.errorCount))
}

func TestSMTPMailer_UnresponsiveRelay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Accepts connections but never sends a greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var held []net.Conn
	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()
	defer func() {
		_ = ln.Close()
		<-accepted
		for _, c := range held {
			_ = c.Close()
		}
	}()

	mailer := NewSMTPMailer(testEmailConfig(config.EmailProviderSMTP), prometheus.NewRegistry())
	mailer.addr = ln.Addr().String()
	mailer.negotiate = func(conn net.Conn) (*smtp.Client, error) { return smtp.NewClient(conn), nil }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = mailer.Send(ctx, testNotification())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	mailer := NewSMTPMailer(testEmailConfig(config.EmailProviderSMTP), prometheus.NewRegistry())
	mailer.addr = addr

	err = mailer.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial failed")
}

func TestSMTPMailer_Verify(t *testing.T) {
	mailer, backend := newTestSMTPMailer(t, testEmailConfig(config.EmailProviderSMTP))
	assert.NoError(t, mailer.Verify(context.Background()))
	assert.Empty(t, backend.received())

	cfg := testEmailConfig(config.EmailProviderSMTP)
	cfg.SMTPPassword = "wrong"
	mailer, _ = newTestSMTPMailer(t, cfg)
	err := mailer.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp auth failed")
}

func TestSMTPMailer_StartTLSRequired(t *testing.T) {
	mailer, _ := newTestSMTPMailer(t, testEmailConfig(config.EmailProviderSMTP))
	mailer.negotiate = mailer.negotiateTLS

	// The in-process relay has no TLS config, so it never offers STARTTLS.
	err := mailer.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp starttls failed")
}

func TestSMTPMailer_NoAuthWithoutUsername(t *testing.T) {
	cfg := testEmailConfig(config.EmailProviderSMTP)
	cfg.SMTPUsername = ""
	mailer, backend := newTestSMTPMailer(t, cfg)
	assert.Nil(t, mailer.auth())

	require.NoError(t, mailer.Send(context.Background(), testNotification()))
	mails := backend.received()
	require.Len(t, mails, 1)
	assert.Empty(t, mails[0].username)
}

func TestNoopMailer(t *testing.T) {
	var m NoopMailer
	assert.ErrorIs(t, m.Send(context.Background(), testNotification()), ErrMailerDisabled)
	assert.ErrorIs(t, m.Verify(context.Background()), ErrMailerDisabled)
	assert.Equal(t, config.EmailProviderNone, m.Name())
}
