package reply

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/metrics"
)

const (
	defaultConcurrency   = 4
	defaultRateBurst     = 10
	defaultRatePerMinute = 60.0
)

// LoopConfig configures a Loop.
type LoopConfig struct {
	Responder     domain.Responder
	Bus           domain.MessageBus
	Logger        *slog.Logger
	Concurrency   int     // max messages answered at once; default 4
	RateBurst     int     // default 10
	RatePerMinute float64 // default 60
}

// Loop answers inbound messages from the bus.
type Loop struct {
	responder   domain.Responder
	bus         domain.MessageBus
	logger      *slog.Logger
	concurrency int
	limiter     *RateLimiter

	// pending holds messages waiting behind the active worker of their chat.
	// A chat has an entry exactly while one of its messages is being answered.
	mu      sync.Mutex
	pending map[string][]domain.InboundMessage
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		responder:   cfg.Responder,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		limiter:     NewRateLimiter(cfg.RateBurst, cfg.RatePerMinute),
		pending:     make(map[string][]domain.InboundMessage),
	}
}

// Run consumes the bus until ctx is done or the bus closes, then waits for
// in-flight messages. Different chats are answered concurrently; messages
// from one chat are answered one at a time in arrival order.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("reply loop started", "concurrency", l.concurrency)

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("reply loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, reply loop stopping")
				return
			}
			if l.enqueue(msg) {
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				l.drain(ctx, m)
			}(msg)
		}
	}
}

// enqueue reports whether msg was queued behind a running worker for its
// chat. When it returns false the caller must start that worker.
func (l *Loop) enqueue(msg domain.InboundMessage) bool {
	key := chatKey(msg)
	l.mu.Lock()
	defer l.mu.Unlock()
	if queue, busy := l.pending[key]; busy {
		l.pending[key] = append(queue, msg)
		return true
	}
	l.pending[key] = nil
	return false
}

// drain answers msg and then every message queued for the same chat.
func (l *Loop) drain(ctx context.Context, msg domain.InboundMessage) {
	key := chatKey(msg)
	for {
		l.handle(ctx, msg)

		l.mu.Lock()
		queue := l.pending[key]
		if len(queue) == 0 {
			delete(l.pending, key)
			l.mu.Unlock()
			return
		}
		msg = queue[0]
		l.pending[key] = queue[1:]
		l.mu.Unlock()
	}
}

func chatKey(msg domain.InboundMessage) string {
	return msg.Channel + ":" + msg.ChatID
}

// handle sends each reply for msg in order on the originating channel.
func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	metrics.ReplyLoopWorkers.Inc()
	defer metrics.ReplyLoopWorkers.Dec()

	start := time.Now()
	replies := l.responder.Respond(ctx, msg)
	if len(replies) == 0 {
		l.logger.Debug("no reply", "channel", msg.Channel, "sender", msg.SenderID)
		return
	}

	for i, rep := range replies {
		if err := l.limiter.Wait(ctx); err != nil {
			l.logger.Warn("reply dropped", "channel", msg.Channel, "chat", msg.ChatID, "remaining", len(replies)-i, "err", err)
			return
		}
		l.bus.SendOutbound(domain.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Content:  rep.Text,
			MediaURL: rep.MediaURL,
		})
	}
	l.logger.Info("message answered",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"replies", len(replies),
		"duration", time.Since(start),
	)
}
