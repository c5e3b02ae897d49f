// Package message renders the outreach email sent to each contact.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/prospector/internal/prospect"
)

// Defaults for the attachment and the closing lines.
const (
	DefaultContentType = "application/pdf"
	DefaultSignature   = "Best,"
)

// ErrMissingResource reports that the attachment file is unavailable.
var ErrMissingResource = fmt.Errorf("attachment not found: %w", prospect.ErrPrecondition)

// Attachment is the file sent with every message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadAttachment reads the attachment at path. Name defaults to the file's
// base name and contentType to DefaultContentType.
func LoadAttachment(path, name, contentType string) (Attachment, error) {
	if strings.TrimSpace(path) == "" {
		return Attachment{}, fmt.Errorf("%w: no path configured", ErrMissingResource)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Attachment{}, fmt.Errorf("%w: %s", ErrMissingResource, path)
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	return Attachment{Name: name, ContentType: contentType, Data: data}, nil
}

// Config controls message composition.
type Config struct {
	From      string
	Signature string
}

// Composer builds one message per recipient.
type Composer struct {
	from       string
	signature  string
	attachment *Attachment
}

// NewComposer validates cfg. attachment may be nil for messages without one.
func NewComposer(cfg Config, attachment *Attachment) (*Composer, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, fmt.Errorf("sender address is not configured: %w", prospect.ErrPrecondition)
	}
	signature := strings.TrimSpace(cfg.Signature)
	if signature == "" {
		signature = DefaultSignature
	}
	return &Composer{from: from, signature: signature, attachment: attachment}, nil
}

// From returns the envelope sender.
func (c *Composer) From() string {
	return c.from
}

// Compose renders the message for a queued contact.
func (c *Composer) Compose(p prospect.PendingContact) (*mail.Msg, error) {
	return c.build(p.Email, Subject(p.Category), Body(p.Domain, p.Category, p.Name, p.Type, c.signature))
}

// Sample renders a test message addressed to to.
func (c *Composer) Sample(to string) (*mail.Msg, error) {
	return c.build(to, "Test message", Body("example.com", "", "", prospect.GenericContactType, c.signature))
}

func (c *Composer) build(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(c.from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if c.attachment != nil {
		err := msg.AttachReader(c.attachment.Name, bytes.NewReader(c.attachment.Data),
			mail.WithFileContentType(mail.ContentType(c.attachment.ContentType)))
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", c.attachment.Name, err)
		}
	}
	return msg, nil
}

// Subject returns the subject line for category.
func Subject(category string) string {
	return fmt.Sprintf("Application: %s roles", orDefault(category))
}

// Greeting returns the salutation. Generic inboxes and unknown names get
// the impersonal form.
func Greeting(name, contactType string) string {
	if strings.EqualFold(strings.TrimSpace(contactType), prospect.GenericContactType) {
		return "Hello,"
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, prospect.UnknownName) {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", strings.Fields(name)[0])
}

// Body returns the plain-text body.
func Body(domain, category, name, contactType, signature string) string {
	if signature == "" {
		signature = DefaultSignature
	}
	var b strings.Builder
	b.WriteString(Greeting(name, contactType))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "I'm reaching out regarding %s roles at %s.\n\n", orDefault(category), domain)
	b.WriteString("Resume attached. If there's a better contact or process, I'd appreciate a pointer.\n\n")
	b.WriteString(signature)
	b.WriteString("\n")
	return b.String()
}

func orDefault(category string) string {
	if c := strings.TrimSpace(category); c != "" {
		return c
	}
	return prospect.DefaultCategory
}
