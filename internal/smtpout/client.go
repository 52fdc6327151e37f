package smtpout

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/lucasrosati/mailramp/internal/config"
)

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporaryError reports whether the error is worth retrying.
// Errors of unknown shape are treated as temporary.
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}

// Relay submits messages through an authenticated SMTP relay
type Relay struct {
	addr     string
	username string
	password string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRelay creates a relay client from the SMTP configuration
func NewRelay(cfg config.SMTPConfig, logger *slog.Logger) *Relay {
	timeout := cfg.SendTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Relay{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		logger:   logger,
	}
}

// Send submits one message to the relay. A connection is opened per
// message; the pacing layer keeps the send rate far below the point
// where that matters.
func (r *Relay) Send(ctx context.Context, msg *Message) error {
	data, err := msg.Build()
	if err != nil {
		return &DeliveryError{
			Temporary: false,
			Message:   fmt.Sprintf("failed to build message: %v", err),
		}
	}

	dialer := &net.Dialer{Timeout: r.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", r.addr, err),
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(r.timeout))
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	host, _, _ := net.SplitHostPort(r.addr)

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return categorizeError(err, "STARTTLS")
		}
	}

	if r.username != "" {
		auth := sasl.NewPlainClient("", r.username, r.password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(msg.From, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(msg.To, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", msg.To))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()

	r.logger.Info("message accepted by relay",
		"relay", r.addr,
		"to", msg.To,
	)

	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Code >= 400 && smtpErr.Code < 500,
			Message:   msg,
		}
	}

	// Fall back to scanning the error text for a status code
	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		return &DeliveryError{
			Temporary: strings.HasPrefix(matches[1], "4"),
			Message:   msg,
		}
	}

	// Assume temporary by default: network flakes and timeouts land here
	return &DeliveryError{
		Temporary: true,
		Message:   msg,
	}
}
