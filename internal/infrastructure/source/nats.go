package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
)

// NATSConfig configures the brokered source.
type NATSConfig struct {
	URL     string
	Subject string
	// Queue joins a queue group so several bridge instances share one
	// stream of deliveries. Empty means plain subscribe.
	Queue string
}

// NATSSource consumes review payloads published on a NATS subject.
type NATSSource struct {
	cfg NATSConfig
}

var _ ports.ReviewSource = (*NATSSource)(nil)

func NewNATSSource(cfg NATSConfig) *NATSSource {
	if cfg.Subject == "" {
		cfg.Subject = "reviews.incoming"
	}
	return &NATSSource{cfg: cfg}
}

// Start subscribes and blocks until ctx is cancelled. A payload that fails
// to deliver is logged and dropped; the store poller remains the catch-up
// path for missed reviews.
func (s *NATSSource) Start(ctx context.Context, sink ports.ReviewSink) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "source.nats"),
		slog.String("subject", s.cfg.Subject))

	conn, err := nats.Connect(s.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return errs.Wrap(err, "connect nats")
	}
	defer conn.Drain()

	handler := func(msg *nats.Msg) {
		payload, err := ParsePayload(msg.Data)
		if err != nil {
			logging.Warn(ctx, "invalid payload message", slog.Any("err", errs.Loggable(err)))
			return
		}
		if err := sink.HandleReview(ctx, payload.ToReview(time.Now().UTC())); err != nil {
			logging.Error(ctx, "deliver payload failed",
				slog.String("review_id", payload.ID),
				slog.Any("err", errs.Loggable(err)))
		}
	}

	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, handler)
	} else {
		sub, err = conn.Subscribe(s.cfg.Subject, handler)
	}
	if err != nil {
		return errs.Wrapf(err, "subscribe %s", s.cfg.Subject)
	}
	defer sub.Unsubscribe()

	logging.Info(ctx, "nats source running")
	<-ctx.Done()
	return ctx.Err()
}
