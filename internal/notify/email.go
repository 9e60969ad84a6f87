package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/store"
)

// EmailConfig holds SMTP settings. With Enabled false every notification is
// logged and skipped.
type EmailConfig struct {
	Enabled  bool
	From     string
	Host     string
	Port     int
	Username string
	Password string
}

// Sender delivers an RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPSender sends through net/smtp, upgrading with STARTTLS when offered.
type SMTPSender struct {
	Addr string
	Auth smtp.Auth
}

func NewSMTPSender(cfg EmailConfig) *SMTPSender {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	s := &SMTPSender{Addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port))}
	if cfg.Username != "" {
		s.Auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, from string, to []string, msg []byte) error {
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(s.Addr, s.Auth, from, to, msg) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Email notifies the owner of a saved query by mail.
type Email struct {
	cfg    EmailConfig
	users  store.UserRepository
	sender Sender
	now    func() time.Time
	log    *logging.Logger
}

func NewEmail(cfg EmailConfig, users store.UserRepository, sender Sender, logger *logging.Logger) *Email {
	if sender == nil {
		sender = NewSMTPSender(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Email{cfg: cfg, users: users, sender: sender, now: time.Now, log: logger}
}

func (e *Email) Notify(ctx context.Context, n Notification) error {
	user, err := e.users.FindByID(ctx, n.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, n.UserID)
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", n.UserID, err)
	}

	if !e.cfg.Enabled {
		e.log.Info("email notifications disabled, skipping", "user_id", n.UserID, "saved_query_id", n.QueryID)
		return nil
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("user %s has no email address", n.UserID)
	}

	msg, err := e.compose(user, n)
	if err != nil {
		return err
	}
	if err := e.sender.Send(ctx, e.cfg.From, []string{user.Email}, msg); err != nil {
		return fmt.Errorf("send to %s: %w", user.Email, err)
	}

	e.log.Info("notification email sent", "user_id", n.UserID, "saved_query_id", n.QueryID, "new_jobs", n.NewJobs)
	return nil
}

// Subject renders "<n> New Job(s) Found: <query>".
func Subject(newJobs int, query string) string {
	plural := "s"
	if newJobs == 1 {
		plural = ""
	}
	return fmt.Sprintf("%d New Job%s Found: %s", newJobs, plural, query)
}

var bodyTemplate = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
<p>Hi {{.Name}},</p>
<p>Your saved search found <strong>{{.NewJobs}}</strong> new job{{if ne .NewJobs 1}}s{{end}}.</p>
<table>
<tr><td>Query</td><td>{{.Query}}</td></tr>
<tr><td>Location</td><td>{{.Location}}</td></tr>
<tr><td>Checked</td><td>{{.RanAt}}</td></tr>
</table>
<p>Log in to review the new postings.</p>
</body>
</html>
`))

func (e *Email) compose(user model.User, n Notification) ([]byte, error) {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.Username
	}

	var h mail.Header
	h.SetDate(e.now())
	h.SetAddressList("From", []*mail.Address{{Address: e.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Name: name, Address: user.Email}})
	h.SetSubject(Subject(n.NewJobs, n.Query))
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	data := struct {
		Name     string
		NewJobs  int
		Query    string
		Location string
		RanAt    string
	}{name, n.NewJobs, n.Query, n.Location, n.RanAt.Format("2006-01-02 15:04 MST")}
	if err := bodyTemplate.Execute(w, data); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}
