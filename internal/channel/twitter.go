package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/metrics"
	"github.com/masganem/PuffleBot/internal/twitter"
)

const (
	twitterChannelName = "twitter"

	// maxDMLength is the Direct Message text limit in characters.
	maxDMLength = 10000

	maxWebhookBody = 1 << 20
)

// DMSender delivers one Direct Message. *twitter.Dispatcher satisfies it.
type DMSender interface {
	Send(ctx context.Context, recipientID, text, mediaURL string) (twitter.Result, error)
}

// TwitterConfig configures the Twitter channel.
type TwitterConfig struct {
	Sender         DMSender
	ConsumerSecret string // signs CRC responses and verifies webhook signatures
	BotUserID      string // messages from this account are ignored
	WebhookPath    string // default: /webhook/twitter
	Host           string
	Port           int    // default: 3000
	MetricsPath    string // empty disables the metrics endpoint
	Logger         *slog.Logger
}

// Twitter receives Direct Messages through the account activity webhook and
// answers them through the Direct Message API.
type Twitter struct {
	cfg    TwitterConfig
	bus    domain.MessageBus
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

func NewTwitter(cfg TwitterConfig) *Twitter {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook/twitter"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t := &Twitter{cfg: cfg, logger: cfg.Logger.With("channel", twitterChannelName)}
	t.mux = t.routes()
	return t
}

func (t *Twitter) Name() string { return twitterChannelName }

func (t *Twitter) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+t.cfg.WebhookPath, t.handleCRC)
	mux.HandleFunc("POST "+t.cfg.WebhookPath, t.handleActivity)
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
	})
	if t.cfg.MetricsPath != "" {
		mux.Handle("GET "+t.cfg.MetricsPath, metrics.Collector.Handler())
	}
	return mux
}

// Handler returns the webhook mux, for mounting or tests.
func (t *Twitter) Handler() http.Handler {
	return t.mux
}

// Start registers the outbound handler and serves the webhook until ctx is done.
func (t *Twitter) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus
	bus.OnOutbound(twitterChannelName, func(msg domain.OutboundMessage) {
		if err := t.Send(ctx, msg); err != nil {
			t.logger.Error("twitter send failed", "chat", msg.ChatID, "err", err)
		}
	})

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	t.server = &http.Server{
		Addr:              addr,
		Handler:           t.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	t.logger.Info("twitter webhook server starting", "addr", addr, "path", t.cfg.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return t.Stop()
	case err := <-errCh:
		return fmt.Errorf("twitter webhook server: %w", err)
	}
}

func (t *Twitter) Stop() error {
	if t.server == nil {
		return nil
	}
	t.logger.Info("twitter webhook server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// Send delivers msg to the user in msg.ChatID. Text longer than one Direct
// Message is split; the media goes with the first part.
func (t *Twitter) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if t.cfg.Sender == nil {
		return errors.New("twitter channel has no sender")
	}
	parts := splitMessage(msg.Content, maxDMLength)
	for i, part := range parts {
		media := ""
		if i == 0 {
			media = msg.MediaURL
		}
		res, err := t.cfg.Sender.Send(ctx, msg.ChatID, part, media)
		if err != nil {
			return fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
		}
		if !res.Delivered {
			return fmt.Errorf("part %d/%d not delivered: %w", i+1, len(parts), res.Err)
		}
	}
	return nil
}

// handleCRC answers the challenge-response check Twitter runs on register
// and periodically afterwards.
func (t *Twitter) handleCRC(rw http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("crc_token")
	if token == "" {
		http.Error(rw, "Missing crc_token", http.StatusBadRequest)
		return
	}
	metrics.CRCChecks.Inc()
	t.logger.Debug("answering crc check")

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(twitter.NewCRCResponse(t.cfg.ConsumerSecret, token))
}

func (t *Twitter) handleActivity(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if t.cfg.ConsumerSecret != "" {
		sig := r.Header.Get(twitter.SignatureHeader)
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !twitter.VerifySignature(t.cfg.ConsumerSecret, body, sig) {
			t.logger.Warn("invalid webhook signature")
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var activity twitter.ActivityEvent
	if err := json.Unmarshal(body, &activity); err != nil {
		t.logger.Warn("bad webhook payload", "err", err)
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}
	metrics.WebhookEvents.Inc()

	for _, msg := range t.inbound(activity) {
		t.logger.Info("direct message received", "sender", msg.SenderID, "text_len", len(msg.Content))
		if t.bus != nil {
			t.bus.Publish(msg)
		}
	}
	rw.WriteHeader(http.StatusOK)
}

// inbound extracts the user messages from an activity payload, skipping
// everything the bot sent itself.
func (t *Twitter) inbound(activity twitter.ActivityEvent) []domain.InboundMessage {
	self := t.cfg.BotUserID
	if self == "" {
		self = activity.ForUserID
	}

	var out []domain.InboundMessage
	for _, ev := range activity.DirectMessageEvents {
		if !ev.IsMessage() {
			continue
		}
		mc := ev.MessageCreate
		if mc.SenderID == "" || mc.SenderID == self {
			continue
		}

		msg := domain.InboundMessage{
			Channel:    twitterChannelName,
			ChatID:     mc.SenderID,
			SenderID:   mc.SenderID,
			SenderName: activity.Users[mc.SenderID].DisplayName(),
			Content:    mc.MessageData.Text,
			Timestamp:  ev.Time(),
		}
		if att := mc.MessageData.Attachment; att != nil && att.Media.MediaURLHTTPS != "" {
			msg.MediaURLs = []string{att.Media.MediaURLHTTPS}
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		out = append(out, msg)
	}
	return out
}
