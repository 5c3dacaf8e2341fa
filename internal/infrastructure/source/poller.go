package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/ports"
)

// PollerConfig configures the store API poller.
type PollerConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AppIDs       []string
	Interval     time.Duration
}

// Poller fetches reviews from the store REST API on a fixed interval. The
// per-app cursor survives restarts through the cache, so a restarted
// bridge resumes where it left off instead of re-delivering history.
// The same authenticated client also pushes developer replies back, which
// makes the poller the bridge's ports.ReplySubmitter.
type Poller struct {
	cfg    PollerConfig
	http   *http.Client
	cursor ports.Cache
}

var (
	_ ports.ReviewSource   = (*Poller)(nil)
	_ ports.ReplySubmitter = (*Poller)(nil)
)

func NewPoller(cfg PollerConfig, cursor ports.Cache) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &Poller{
		cfg:    cfg,
		http:   oauthCfg.Client(context.Background()),
		cursor: cursor,
	}
}

// Start polls until ctx is cancelled. One failed poll logs and waits for
// the next tick; only context cancellation stops the source.
func (p *Poller) Start(ctx context.Context, sink ports.ReviewSink) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "source.poller"))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollAll(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollAll(ctx, sink)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context, sink ports.ReviewSink) {
	for _, appID := range p.cfg.AppIDs {
		if ctx.Err() != nil {
			return
		}
		if err := p.pollApp(ctx, sink, appID); err != nil {
			logging.Error(ctx, "poll failed",
				slog.String("app_id", appID),
				slog.Any("err", errs.Loggable(err)))
		}
	}
}

func (p *Poller) pollApp(ctx context.Context, sink ports.ReviewSink, appID string) error {
	cursorKey := "source:cursor:" + appID
	cursor, _, err := p.cursor.Get(ctx, cursorKey)
	if err != nil {
		return errs.Wrap(err, "load cursor")
	}

	for {
		page, err := p.fetchPage(ctx, appID, cursor)
		if err != nil {
			return err
		}

		for _, payload := range page.Reviews {
			if err := payload.Validate(); err != nil {
				logging.Warn(ctx, "skipping malformed review",
					slog.String("review_id", payload.ID),
					slog.Any("err", errs.Loggable(err)))
				continue
			}
			if err := sink.HandleReview(ctx, payload.ToReview(time.Now().UTC())); err != nil {
				// Stop the page without advancing the cursor so the
				// failed review is retried on the next tick.
				return errs.Wrapf(err, "deliver review %s", payload.ID)
			}
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
		if err := p.cursor.Set(ctx, cursorKey, cursor, 0); err != nil {
			return errs.Wrap(err, "persist cursor")
		}
	}
}

type reviewPage struct {
	Reviews    []ReviewPayload `json:"reviews"`
	NextCursor string          `json:"next_cursor"`
}

func (p *Poller) fetchPage(ctx context.Context, appID string, cursor string) (reviewPage, error) {
	endpoint := fmt.Sprintf("%s/v1/apps/%s/reviews",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(appID))
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return reviewPage{}, errs.Wrap(err, "build request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return reviewPage{}, errs.Wrap(err, "fetch reviews")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return reviewPage{}, errs.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return reviewPage{}, fmt.Errorf("store api %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var page reviewPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return reviewPage{}, errs.Wrap(err, "decode review page")
	}
	return page, nil
}

// SubmitReply pushes a developer reply to the store.
func (p *Poller) SubmitReply(ctx context.Context, appID string, reviewID string, body string) error {
	endpoint := fmt.Sprintf("%s/v1/apps/%s/reviews/%s/reply",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(appID), url.PathEscape(reviewID))

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return errs.Wrap(err, "encode reply")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return errs.Wrap(err, "submit reply")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("store api rejected reply: %d", resp.StatusCode)
	}
	return nil
}
