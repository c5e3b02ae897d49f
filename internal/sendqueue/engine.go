// Package sendqueue drains pending contacts through the mail transport one
// at a time, committing each outcome before moving on.
package sendqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/message"
	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
)

// ErrMissingResource reports that the attachment is unavailable.
var ErrMissingResource = message.ErrMissingResource

// State is the lifecycle of a run.
type State string

// Run states.
const (
	StateInit        State = "init"
	StateDraining    State = "draining"
	StateDone        State = "done"
	StateAborted     State = "aborted"
	StateNothingToDo State = "nothing_to_do"
)

// Queue is the store surface the engine needs.
type Queue interface {
	FetchPending(ctx context.Context, limit int) ([]prospect.PendingContact, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	Counts(ctx context.Context) (prospect.StatusCounts, error)
}

// Transport delivers composed messages over an open session.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
	Close() error
}

// Opener opens a transport session.
type Opener func(ctx context.Context) (Transport, error)

// Pacer delays between attempts.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Config controls a send run.
type Config struct {
	Limit  int
	DryRun bool

	AttachmentPath        string
	AttachmentName        string
	AttachmentContentType string

	Message message.Config
}

// Summary reports a send run. Attempted differs from Fetched only when
// the run aborted.
type Summary struct {
	RunID      string
	State      State
	DryRun     bool
	Fetched    int
	Attempted  int
	Sent       int
	Failed     int
	Diagnostic string
	Attachment string
	Counts     prospect.StatusCounts
}

// NothingToDo reports whether the queue was empty.
func (s Summary) NothingToDo() bool {
	return s.State == StateNothingToDo
}

// Engine runs the send queue.
type Engine struct {
	queue  Queue
	open   Opener
	pacer  Pacer
	hasher prospect.Hasher
	ids    prospect.IDGenerator
	cfg    Config
	logger *zap.Logger
}

// New constructs an Engine. pacer, hasher and ids may be nil.
func New(
	queue Queue,
	open Opener,
	pacer Pacer,
	hasher prospect.Hasher,
	ids prospect.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		queue:  queue,
		open:   open,
		pacer:  pacer,
		hasher: hasher,
		ids:    ids,
		cfg:    cfg,
		logger: logger.Named("sendqueue"),
	}
}

// Run drains up to limit pending contacts. A non-positive limit uses the
// configured default. Per-contact delivery failures are recorded and the run
// continues; store failures and cancellation abort it.
func (e *Engine) Run(ctx context.Context, limit int) (Summary, error) {
	if limit <= 0 {
		limit = e.cfg.Limit
	}
	summary := Summary{State: StateInit, DryRun: e.cfg.DryRun, RunID: e.runID()}
	logger := e.logger.With(zap.String("run_id", summary.RunID))

	counts, err := e.queue.Counts(ctx)
	if err != nil {
		return e.abort(logger, summary, fmt.Errorf("count contacts: %w", err))
	}
	summary.Counts = counts
	if counts.Pending == 0 {
		return e.nothingToDo(logger, summary), nil
	}

	composer, err := e.composer(logger, &summary)
	if err != nil {
		return e.abort(logger, summary, err)
	}

	pending, err := e.queue.FetchPending(ctx, limit)
	if err != nil {
		return e.abort(logger, summary, fmt.Errorf("fetch pending: %w", err))
	}
	summary.Fetched = len(pending)
	if len(pending) == 0 {
		return e.nothingToDo(logger, summary), nil
	}

	var transport Transport
	if e.cfg.DryRun {
		logger.Info("dry run, no transport session will be opened", zap.Int("contacts", len(pending)))
	} else {
		if e.open == nil {
			return e.abort(logger, summary, fmt.Errorf("no transport configured: %w", prospect.ErrPrecondition))
		}
		transport, err = e.open(ctx)
		if err != nil {
			return e.abort(logger, summary, fmt.Errorf("open transport: %w", err))
		}
		defer func() {
			if err := transport.Close(); err != nil {
				logger.Warn("transport close failed", zap.Error(err))
			}
		}()
	}

	summary.State = StateDraining
	for i, contact := range pending {
		if i > 0 && e.pacer != nil {
			if _, err := e.pacer.Wait(ctx); err != nil {
				return e.abort(logger, summary, fmt.Errorf("send interrupted: %w", err))
			}
		}
		if err := ctx.Err(); err != nil {
			return e.abort(logger, summary, fmt.Errorf("send interrupted: %w", err))
		}

		deliveryErr := e.deliver(ctx, composer, transport, contact)
		if deliveryErr != nil && ctx.Err() != nil {
			return e.abort(logger, summary, fmt.Errorf("send interrupted: %w", ctx.Err()))
		}
		fields := []zap.Field{
			zap.Int64("contact_id", contact.ID),
			zap.String("email", contact.Email),
			zap.String("domain", contact.Domain),
			zap.Int("position", i+1),
			zap.Int("total", len(pending)),
		}
		if deliveryErr != nil {
			if err := e.queue.MarkFailed(ctx, contact.ID, prospect.TruncateError(deliveryErr)); err != nil {
				return e.abort(logger, summary, fmt.Errorf("mark failed %d: %w", contact.ID, err))
			}
			summary.Attempted++
			summary.Failed++
			metrics.ObserveDelivery(metrics.OutcomeFailed)
			logger.Warn("delivery failed", append(fields, zap.Error(deliveryErr))...)
			continue
		}
		if err := e.queue.MarkSent(ctx, contact.ID); err != nil {
			return e.abort(logger, summary, fmt.Errorf("mark sent %d: %w", contact.ID, err))
		}
		summary.Attempted++
		summary.Sent++
		if e.cfg.DryRun {
			metrics.ObserveDelivery(metrics.OutcomeDryRun)
			logger.Info("dry run, would send", fields...)
		} else {
			metrics.ObserveDelivery(metrics.OutcomeSent)
			logger.Info("sent", fields...)
		}
	}

	summary.State = StateDone
	metrics.ObserveSendRun(string(summary.State))
	logger.Info("send run complete",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("attempted", summary.Attempted),
		zap.Int("fetched", summary.Fetched),
		zap.Bool("dry_run", summary.DryRun),
	)
	return summary, nil
}

func (e *Engine) deliver(ctx context.Context, composer *message.Composer, transport Transport, contact prospect.PendingContact) error {
	msg, err := composer.Compose(contact)
	if err != nil {
		return err
	}
	if transport == nil {
		return nil
	}
	return transport.Send(ctx, msg)
}

func (e *Engine) composer(logger *zap.Logger, summary *Summary) (*message.Composer, error) {
	attachment, err := message.LoadAttachment(e.cfg.AttachmentPath, e.cfg.AttachmentName, e.cfg.AttachmentContentType)
	if err != nil {
		return nil, err
	}
	summary.Attachment = attachment.Name
	if e.hasher != nil {
		digest, err := e.hasher.Hash(attachment.Data)
		if err == nil {
			logger.Info("attachment loaded",
				zap.String("name", attachment.Name),
				zap.Int("bytes", len(attachment.Data)),
				zap.String("sha256", digest),
			)
		}
	}
	return message.NewComposer(e.cfg.Message, &attachment)
}

func (e *Engine) nothingToDo(logger *zap.Logger, summary Summary) Summary {
	summary.State = StateNothingToDo
	switch c := summary.Counts; {
	case c.Contacts == 0:
		summary.Diagnostic = "database has no contacts; run discovery or import a contacts batch first"
	default:
		summary.Diagnostic = fmt.Sprintf("all %d contacts already processed (sent=%d failed=%d)", c.Contacts, c.Sent, c.Failed)
	}
	metrics.ObserveSendRun(string(summary.State))
	logger.Info("nothing to send", zap.String("diagnostic", summary.Diagnostic))
	return summary
}

func (e *Engine) abort(logger *zap.Logger, summary Summary, err error) (Summary, error) {
	summary.State = StateAborted
	metrics.ObserveSendRun(string(summary.State))
	logger.Error("send run aborted",
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("attempted", summary.Attempted),
		zap.Int("fetched", summary.Fetched),
		zap.Error(err),
	)
	return summary, err
}

func (e *Engine) runID() string {
	if e.ids == nil {
		return ""
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}
