package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/metrics"
)

const sendTarget = "direct_messages/events/new.json"

// MediaUploader turns a media URL into an attachable media id.
type MediaUploader interface {
	Upload(ctx context.Context, source string) (string, error)
}

// Result describes what happened to one dispatched message.
type Result struct {
	ID          string
	RecipientID string
	MediaSource string
	MediaID     string
	EventID     string // id of the created event, when the send succeeded
	Delivered   bool
	Err         error // final send failure; nil when Delivered
	SentAt      time.Time
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Client   *Client
	Uploader MediaUploader
	Journal  domain.Journal
	Logger   *slog.Logger
}

// Dispatcher sends Direct Messages, uploading the attached media first.
// It is safe for concurrent use.
type Dispatcher struct {
	client   *Client
	uploader MediaUploader
	journal  domain.Journal
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		client:   cfg.Client,
		uploader: cfg.Uploader,
		journal:  cfg.Journal,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Send delivers text, with the image behind mediaURL attached when it is
// non-empty, to recipientID.
//
// A media failure is returned as is and nothing is sent. A failure of the
// message send itself is logged and reported in Result.Err only; the
// returned error is nil.
func (d *Dispatcher) Send(ctx context.Context, recipientID, text, mediaURL string) (Result, error) {
	res := Result{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		MediaSource: mediaURL,
	}

	if mediaURL != "" {
		if d.uploader == nil {
			return res, fmt.Errorf("send to %s: media attached but no uploader configured", recipientID)
		}
		mediaID, err := d.uploader.Upload(ctx, mediaURL)
		if err != nil {
			return res, err
		}
		res.MediaID = mediaID
	}

	msg := ComposeMessage(recipientID, text, res.MediaID)
	res.SentAt = d.now()
	eventID, err := d.post(ctx, msg)
	if err != nil {
		res.Err = err
		metrics.DMFailed.Inc()
		attrs := []any{"delivery", res.ID, "recipient", recipientID, "err", err}
		var te *TransportError
		if errors.As(err, &te) && te.Body != "" {
			attrs = append(attrs, "status", te.StatusCode, "response", te.Body)
		}
		d.logger.Error("direct message failed", attrs...)
	} else {
		res.Delivered = true
		res.EventID = eventID
		metrics.DMSent.Inc()
		d.logger.Info("direct message sent", "delivery", res.ID, "recipient", recipientID, "event", eventID, "media_id", res.MediaID)
	}

	d.record(ctx, res, len(text))
	return res, nil
}

func (d *Dispatcher) post(ctx context.Context, msg DirectMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal direct message: %w", err)
	}
	req := d.client.NewRequest(StandardAPI, http.MethodPost, sendTarget, nil)
	req.Body = body
	req.ContentType = "application/json"

	var resp sendResponse
	if err := d.client.Do(ctx, "direct message", req, &resp); err != nil {
		return "", err
	}
	return resp.Event.ID, nil
}

func (d *Dispatcher) record(ctx context.Context, res Result, textLen int) {
	if d.journal == nil {
		return
	}
	rec := domain.DeliveryRecord{
		ID:          res.ID,
		RecipientID: res.RecipientID,
		TextLength:  textLen,
		MediaSource: res.MediaSource,
		MediaID:     res.MediaID,
		EventID:     res.EventID,
		Status:      domain.DeliveryDelivered,
		CreatedAt:   res.SentAt,
	}
	if !res.Delivered {
		rec.Status = domain.DeliveryFailed
		rec.Error = res.Err.Error()
	}
	if err := d.journal.RecordDelivery(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("journal delivery failed", "delivery", res.ID, "err", err)
	}
}
