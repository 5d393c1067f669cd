package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherConfig controls polling and retry behaviour.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// BaseBackoff is the delay before the first retry. Each later retry doubles
	// it, up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Lease is how long a claimed message stays invisible to other workers.
	Lease time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		MaxAttempts:  5,
		BaseBackoff:  30 * time.Second,
		MaxBackoff:   time.Hour,
		Lease:        2 * time.Minute,
	}
}

// Dispatcher drains the outbox, rendering each message and handing it to the
// EmailSender.
type Dispatcher struct {
	outbox    Outbox
	templates *TemplateEngine
	sender    EmailSender
	cfg       DispatcherConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(outbox Outbox, templates *TemplateEngine, sender EmailSender, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	return &Dispatcher{
		outbox:    outbox,
		templates: templates,
		sender:    sender,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox-dispatcher").Logger(),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().Dur("interval", d.cfg.PollInterval).Msg("notification dispatcher started")
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("dispatch notifications")
		}
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("notification dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchPending processes one batch of due messages and returns how many
// were delivered.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	now := d.now().UTC()
	batch, err := d.outbox.ClaimDue(ctx, now, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, m := range batch {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if d.deliver(ctx, m) {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, m *Message) bool {
	log := d.logger.With().Str("notification_id", m.ID.String()).Str("template", m.Template).Logger()
	attempts := m.Attempts + 1

	subject, body, err := d.templates.Render(m.Template, m.Data)
	if err != nil {
		// Retrying cannot fix a missing template.
		if markErr := d.outbox.MarkFailed(ctx, m.ID, attempts, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("mark notification failed")
		}
		log.Error().Err(err).Msg("render notification")
		return false
	}

	if err := d.sender.SendEmail(ctx, m.Recipient, subject, body); err != nil {
		if attempts >= d.cfg.MaxAttempts {
			if markErr := d.outbox.MarkFailed(ctx, m.ID, attempts, err.Error()); markErr != nil {
				log.Error().Err(markErr).Msg("mark notification failed")
			}
			log.Error().Err(err).Int("attempts", attempts).Msg("notification gave up")
			return false
		}
		next := d.now().UTC().Add(Backoff(attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
		if markErr := d.outbox.MarkRetry(ctx, m.ID, attempts, err.Error(), next); markErr != nil {
			log.Error().Err(markErr).Msg("schedule notification retry")
		}
		log.Warn().Err(err).Int("attempts", attempts).Time("next_attempt_at", next).Msg("notification send failed")
		return false
	}

	if err := d.outbox.MarkSent(ctx, m.ID, d.now().UTC()); err != nil {
		log.Error().Err(err).Msg("mark notification sent")
		return false
	}
	log.Debug().Str("recipient", m.Recipient).Msg("notification sent")
	return true
}

// Backoff returns the delay before retry number attempt (1-based): base,
// 2*base, 4*base and so on, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
