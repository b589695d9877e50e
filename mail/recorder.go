package mail

import (
	"context"
	"sync"

	"github.com/MrEthical07/accounts/internal/logging"
)

// Message is a mail captured by Recorder.
type Message struct {
	Template string
	To       string
	Username string
	Link     string
}

// Recorder is an accounts.Mailer that keeps messages in memory and logs the
// link. It backs development runs without an SMTP relay.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	log      logging.Logger
}

// NewRecorder returns an empty Recorder logging to log, or nowhere when nil.
func NewRecorder(log logging.Logger) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	return &Recorder{log: log}
}

func (r *Recorder) SendUserVerification(ctx context.Context, to, username, link string) error {
	r.record(ctx, Message{Template: TemplateUserVerification, To: to, Username: username, Link: link})
	return nil
}

func (r *Recorder) SendPasswordReset(ctx context.Context, to, username, link string) error {
	r.record(ctx, Message{Template: TemplatePasswordReset, To: to, Username: username, Link: link})
	return nil
}

func (r *Recorder) record(ctx context.Context, m Message) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
	r.log.Info(ctx, "mail recorded", "template", m.Template, "to", m.To, "link", m.Link)
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message for template.
func (r *Recorder) Last(template string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Template == template {
			return r.messages[i], true
		}
	}
	return Message{}, false
}
