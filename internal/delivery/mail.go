package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSMTPPort is the submission port used with STARTTLS.
	DefaultSMTPPort = 587
	// implicitTLSPort is the SMTPS port, where TLS starts before the greeting.
	implicitTLSPort = 465

	smtpTimeout = 2 * time.Minute
	lineLength  = 76
)

// Mailer sends a file as the single attachment of a mail.
type Mailer interface {
	SendFile(ctx context.Context, to, subject, path string) error
}

// SMTPConfig is the account the mails are sent from.
type SMTPConfig struct {
	Address  string
	Host     string
	Password string
	Port     int
}

// SMTPMailer sends mails through one SMTP relay, upgrading to TLS when the
// server offers it.
type SMTPMailer struct {
	config    SMTPConfig
	from      *mail.Address
	tlsConfig *tls.Config
}

// NewSMTPMailer validates config and returns a mailer for it.
func NewSMTPMailer(config SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(config.Host) == "" {
		return nil, errors.New("smtp host is empty")
	}
	from, err := mail.ParseAddress(config.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", config.Address, err)
	}
	if config.Port == 0 {
		config.Port = DefaultSMTPPort
	}
	return &SMTPMailer{
		config:    config,
		from:      &mail.Address{Name: AppName, Address: from.Address},
		tlsConfig: &tls.Config{ServerName: config.Host},
	}, nil
}

// SendFile implements Mailer.
func (m *SMTPMailer) SendFile(ctx context.Context, to, subject, path string) error {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid receiver address %q: %w", to, err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	msg, err := m.buildMessage(rcpt, subject, filepath.Base(path), body, time.Now())
	if err != nil {
		return err
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if err := m.send(client, rcpt.Address, msg); err != nil {
		return err
	}
	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if m.config.Port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: m.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(smtpTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (m *SMTPMailer) send(client *smtp.Client, to string, msg []byte) error {
	if m.config.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig); err != nil {
				return fmt.Errorf("starttls failed: %w", err)
			}
		}
	}
	if ok, mechanisms := client.Extension("AUTH"); ok && m.config.Password != "" {
		if err := client.Auth(m.auth(mechanisms)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(m.from.Address); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return nil
}

// auth prefers PLAIN and falls back to LOGIN for servers that only offer it.
func (m *SMTPMailer) auth(mechanisms string) smtp.Auth {
	for _, mech := range strings.Fields(strings.ToUpper(mechanisms)) {
		if mech == "PLAIN" {
			return smtp.PlainAuth("", m.config.Address, m.config.Password, m.config.Host)
		}
	}
	return &loginAuth{username: m.config.Address, password: m.config.Password}
}

// buildMessage renders a multipart/mixed mail carrying one PDF attachment.
func (m *SMTPMailer) buildMessage(to *mail.Address, subject, filename string, attachment []byte, date time.Time) ([]byte, error) {
	var body bytes.Buffer
	parts := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", mime.FormatMediaType("application/pdf", map[string]string{"name": filename}))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	header.Set("Content-Transfer-Encoding", "base64")
	part, err := parts.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment part: %w", err)
	}
	if err := writeBase64Lines(part, attachment); err != nil {
		return nil, err
	}
	if err := parts.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", date.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": parts.Boundary()}))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(lineLength, len(encoded))
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:n]); err != nil {
			return fmt.Errorf("failed to write attachment: %w", err)
		}
		encoded = encoded[n:]
	}
	return nil
}

// loginAuth implements the LOGIN mechanism, which net/smtp lacks.
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(string(fromServer))) {
	case "username:":
		return []byte(a.username), nil
	case "password:":
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}

func isLocalhost(name string) bool {
	return name == "localhost" || name == "127.0.0.1" || name == "::1"
}
