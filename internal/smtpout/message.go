package smtpout

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one fully personalized outbound email
type Message struct {
	From     string
	FromName string
	ReplyTo  string
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string // empty for plain-text only

	// UnsubscribeURL, when set, is advertised in a List-Unsubscribe header
	UnsubscribeURL string

	// AttachmentPath is an optional file attached to the message
	AttachmentPath string
}

// Build assembles the RFC 5322 wire form of the message. Plain-text and
// HTML bodies go into a multipart/alternative part; an attachment wraps
// the whole thing in multipart/mixed.
func (m *Message) Build() ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", formatAddress(m.FromName, m.From))
	writeHeader(&buf, "To", formatAddress(m.ToName, m.To))
	if m.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", m.ReplyTo)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader(&buf, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID(m.From))
	if m.UnsubscribeURL != "" {
		writeHeader(&buf, "List-Unsubscribe", "<"+m.UnsubscribeURL+">")
		writeHeader(&buf, "List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if m.AttachmentPath == "" {
		return m.buildBody(&buf)
	}
	return m.buildWithAttachment(&buf)
}

// buildBody writes the body parts directly under the top-level headers
func (m *Message) buildBody(buf *bytes.Buffer) ([]byte, error) {
	if m.HTML == "" {
		writeHeader(buf, "Content-Type", `text/plain; charset="utf-8"`)
		writeHeader(buf, "Content-Transfer-Encoding", "base64")
		buf.WriteString("\r\n")
		writeBase64(buf, []byte(m.Text))
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
	buf.WriteString("\r\n")

	if err := writeAlternative(mw, m.Text, m.HTML); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildWithAttachment wraps bodies and attachment in multipart/mixed
func (m *Message) buildWithAttachment(buf *bytes.Buffer) ([]byte, error) {
	data, err := os.ReadFile(m.AttachmentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	mixed := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", `multipart/mixed; boundary="`+mixed.Boundary()+`"`)
	buf.WriteString("\r\n")

	if m.HTML == "" {
		part, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {`text/plain; charset="utf-8"`},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		writeBase64Part(part, []byte(m.Text))
	} else {
		var inner bytes.Buffer
		alt := multipart.NewWriter(&inner)
		if err := writeAlternative(alt, m.Text, m.HTML); err != nil {
			return nil, err
		}
		if err := alt.Close(); err != nil {
			return nil, err
		}

		part, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type": {`multipart/alternative; boundary="` + alt.Boundary() + `"`},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(inner.Bytes()); err != nil {
			return nil, err
		}
	}

	filename := filepath.Base(m.AttachmentPath)
	attach, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`application/octet-stream; name="` + filename + `"`},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {`attachment; filename="` + filename + `"`},
	})
	if err != nil {
		return nil, err
	}
	writeBase64Part(attach, data)

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAlternative(mw *multipart.Writer, text, html string) error {
	// plain text first so HTML-capable clients prefer the later part
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	writeBase64Part(part, []byte(text))

	part, err = mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/html; charset="utf-8"`},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	writeBase64Part(part, []byte(html))
	return nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// writeBase64 emits base64 data wrapped at 76 characters per RFC 2045
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
}

func writeBase64Part(w interface{ Write([]byte) (int, error) }, data []byte) {
	var buf bytes.Buffer
	writeBase64(&buf, data)
	w.Write(buf.Bytes())
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return mime.QEncoding.Encode("utf-8", name) + " <" + addr + ">"
}

func messageID(from string) string {
	domain := "localhost"
	if i := strings.IndexByte(from, '@'); i >= 0 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
