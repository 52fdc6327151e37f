package smtpout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPlainText(t *testing.T) {
	msg := &Message{
		From:    "sender@example.com",
		To:      "contato@acme.com.br",
		Subject: "Proposta",
		Text:    "Olá, tudo bem?",
	}

	data, err := msg.Build()
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	wire := string(data)

	for _, want := range []string{
		"From: sender@example.com\r\n",
		"To: contato@acme.com.br\r\n",
		"MIME-Version: 1.0\r\n",
		`Content-Type: text/plain; charset="utf-8"`,
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(wire, want) {
			t.Errorf("expected message to contain %q", want)
		}
	}
	if strings.Contains(wire, "List-Unsubscribe") {
		t.Error("unexpected List-Unsubscribe header without an unsubscribe URL")
	}
	if !strings.Contains(wire, "Message-ID: <") {
		t.Error("expected a Message-ID header")
	}
}

func TestBuildAlternative(t *testing.T) {
	msg := &Message{
		From:           "sender@example.com",
		FromName:       "Equipe Comercial",
		To:             "contato@acme.com.br",
		Subject:        "Proposta",
		Text:           "Olá",
		HTML:           "<p>Olá</p>",
		UnsubscribeURL: "http://track.example.com/unsubscribe/tok",
	}

	data, err := msg.Build()
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	wire := string(data)

	if !strings.Contains(wire, "multipart/alternative") {
		t.Error("expected multipart/alternative content type")
	}
	if !strings.Contains(wire, `text/plain; charset="utf-8"`) {
		t.Error("expected a text/plain part")
	}
	if !strings.Contains(wire, `text/html; charset="utf-8"`) {
		t.Error("expected a text/html part")
	}
	if !strings.Contains(wire, "List-Unsubscribe: <http://track.example.com/unsubscribe/tok>") {
		t.Error("expected List-Unsubscribe header")
	}
	// plain part must come before the HTML part
	if strings.Index(wire, "text/plain") > strings.Index(wire, "text/html") {
		t.Error("expected text/plain part before text/html part")
	}
}

func TestBuildWithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogo.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatalf("failed to write attachment: %v", err)
	}

	msg := &Message{
		From:           "sender@example.com",
		To:             "contato@acme.com.br",
		Subject:        "Proposta",
		Text:           "Segue em anexo.",
		HTML:           "<p>Segue em anexo.</p>",
		AttachmentPath: path,
	}

	data, err := msg.Build()
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	wire := string(data)

	if !strings.Contains(wire, "multipart/mixed") {
		t.Error("expected multipart/mixed content type")
	}
	if !strings.Contains(wire, `attachment; filename="catalogo.pdf"`) {
		t.Error("expected attachment disposition")
	}
	if !strings.Contains(wire, "multipart/alternative") {
		t.Error("expected nested multipart/alternative part")
	}
}

func TestBuildMissingAttachment(t *testing.T) {
	msg := &Message{
		From:           "sender@example.com",
		To:             "contato@acme.com.br",
		Subject:        "Proposta",
		Text:           "Segue em anexo.",
		AttachmentPath: "/nonexistent/file.pdf",
	}

	if _, err := msg.Build(); err == nil {
		t.Error("expected error for missing attachment")
	}
}

func TestFormatAddress(t *testing.T) {
	if got := formatAddress("", "a@b.com"); got != "a@b.com" {
		t.Errorf("expected bare address, got %s", got)
	}
	got := formatAddress("Equipe", "a@b.com")
	if !strings.HasSuffix(got, " <a@b.com>") {
		t.Errorf("expected name-addr form, got %s", got)
	}
}
