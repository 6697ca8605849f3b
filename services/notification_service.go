package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/types"
	"go.uber.org/zap"
)

// Notifier sends the emails triggered by the pipeline and the admin test endpoint.
type Notifier interface {
	Enabled() bool
	NotifySubmission(ctx context.Context, sub types.Submission) error
	SendTest(ctx context.Context) error
}

// NotificationService renders notifications and hands them to a Mailer.
type NotificationService struct {
	mailer Mailer
	config config.EmailConfig
	log    *zap.SugaredLogger
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(mailer Mailer, cfg config.EmailConfig) *NotificationService {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &NotificationService{
		mailer: mailer,
		config: cfg,
		log:    logger.GetLogger().Named("notifications"),
	}
}

// Enabled reports whether a real transport is configured.
func (s *NotificationService) Enabled() bool {
	return s.mailer.Name() != config.EmailProviderNone
}

// VerifyOnStartup logs whether the transport is ready. It never fails startup.
func (s *NotificationService) VerifyOnStartup(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info("Email notifications disabled")
		return
	}
	if err := s.mailer.Verify(ctx); err != nil {
		s.log.Warnw("Email transport verification failed", "provider", s.mailer.Name(), "error", err)
		return
	}
	s.log.Infow("Email server is ready to send messages", "provider", s.mailer.Name())
}

// NotifySubmission mails the owner about sub and, when configured, sends the
// submitter a receipt. A failed receipt does not mask a delivered owner mail.
func (s *NotificationService) NotifySubmission(ctx context.Context, sub types.Submission) error {
	if !s.Enabled() {
		return nil
	}

	owner, err := renderOwnerNotification(s.config.Recipient(), sub)
	if err != nil {
		return err
	}
	if err := s.send(ctx, types.NotificationOwner, owner); err != nil {
		return err
	}

	if !s.config.SendConfirmation {
		return nil
	}
	receipt, err := renderConfirmation(sub, s.config.FromName)
	if err != nil {
		return err
	}
	if err := s.send(ctx, types.NotificationConfirmation, receipt); err != nil {
		s.log.Warnw("Confirmation email failed", "to", logger.MaskEmail(sub.Email), "error", err)
	}
	return nil
}

// SendTest mails the owner a fixed test message.
func (s *NotificationService) SendTest(ctx context.Context) error {
	if !s.Enabled() {
		return ErrMailerDisabled
	}
	return s.send(ctx, types.NotificationTest, Notification{
		To:      s.config.Recipient(),
		Subject: "Test Email",
		Text:    "This is a test email from your portfolio backend.",
	})
}

func (s *NotificationService) send(ctx context.Context, kind types.NotificationKind, n Notification) error {
	if timeout := s.config.SendTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.mailer.Send(ctx, n); err != nil {
		return fmt.Errorf("%s notification: %w", kind, err)
	}
	s.log.Infow("Email sent successfully",
		"kind", kind,
		"to", logger.MaskEmail(n.To),
		"provider", s.mailer.Name())
	return nil
}

// notificationData carries the template fields. Name and Message are already
// HTML-escaped by the intake sanitizer, so the HTML templates receive them as
// trusted markup and the text templates receive them unescaped.
type notificationData struct {
	Name    string
	Email   string
	Message string
	IP      string
	Time    string
}

type notificationHTMLData struct {
	Name    htmltemplate.HTML
	Email   string
	Message htmltemplate.HTML
	IP      string
	Time    string
}

var (
	ownerHTMLTemplate = htmltemplate.Must(htmltemplate.New("owner-html").Parse(`
<h3>New Contact Form Submission</h3>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Message:</strong> {{.Message}}</p>
<p><strong>IP:</strong> {{.IP}}</p>
<p><strong>Time:</strong> {{.Time}}</p>
`))

	ownerTextTemplate = template.Must(template.New("owner-text").Parse(`New Contact Form Submission

Name: {{.Name}}
Email: {{.Email}}
Message: {{.Message}}
IP: {{.IP}}
Time: {{.Time}}
`))

	confirmationHTMLTemplate = htmltemplate.Must(htmltemplate.New("confirmation-html").Parse(`
<p>Hi {{.Name}},</p>
<p>Thanks for getting in touch. Your message was received and I will reply as soon as I can.</p>
<blockquote>{{.Message}}</blockquote>
`))

	confirmationTextTemplate = template.Must(template.New("confirmation-text").Parse(`Hi {{.Name}},

Thanks for getting in touch. Your message was received and I will reply as soon as I can.

> {{.Message}}
`))
)

func newNotificationData(sub types.Submission) (notificationData, notificationHTMLData) {
	ip := sub.OriginIP
	if ip == "" {
		ip = "unknown"
	}
	at := sub.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC().Format(time.RFC3339)

	text := notificationData{
		Name:    html.UnescapeString(sub.Name),
		Email:   sub.Email,
		Message: html.UnescapeString(sub.Message),
		IP:      ip,
		Time:    ts,
	}
	markup := notificationHTMLData{
		Name:    htmltemplate.HTML(sub.Name),
		Email:   sub.Email,
		Message: htmltemplate.HTML(sub.Message),
		IP:      ip,
		Time:    ts,
	}
	return text, markup
}

func renderOwnerNotification(to string, sub types.Submission) (Notification, error) {
	text, markup := newNotificationData(sub)

	htmlBody, err := execute(ownerHTMLTemplate.Execute, markup)
	if err != nil {
		return Notification{}, err
	}
	textBody, err := execute(ownerTextTemplate.Execute, text)
	if err != nil {
		return Notification{}, err
	}

	return Notification{
		To:      to,
		ReplyTo: sub.Email,
		Subject: "New Portfolio Contact",
		HTML:    htmlBody,
		Text:    textBody,
	}, nil
}

func renderConfirmation(sub types.Submission, fromName string) (Notification, error) {
	text, markup := newNotificationData(sub)

	htmlBody, err := execute(confirmationHTMLTemplate.Execute, markup)
	if err != nil {
		return Notification{}, err
	}
	textBody, err := execute(confirmationTextTemplate.Execute, text)
	if err != nil {
		return Notification{}, err
	}

	subject := "Thanks for your message"
	if fromName != "" {
		subject += " to " + fromName
	}
	return Notification{
		To:      sub.Email,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	}, nil
}

func execute(fn func(w io.Writer, data any) error, data any) (string, error) {
	var buf bytes.Buffer
	if err := fn(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render notification: %w", err)
	}
	return buf.String(), nil
}
