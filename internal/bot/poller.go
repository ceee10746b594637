package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

const (
	pollTimeoutSeconds = 60
	workerQueueSize    = 64
)

// UpdateSource is the long-polling side of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// MessageHandler handles one inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *tgbotapi.Message)
}

// Poller reads updates and hands messages to a fixed set of workers. A chat always lands on the
// same worker, so its messages are handled in arrival order while different chats run in parallel.
type Poller struct {
	source  UpdateSource
	handler MessageHandler
	workers int
	logger  *slog.Logger
}

// NewPoller returns a Poller with workers goroutines (at least one).
func NewPoller(source UpdateSource, handler MessageHandler, workers int, logger *slog.Logger) *Poller {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, handler: handler, workers: workers, logger: logger}
}

// Run polls until ctx is done or the update channel closes, then lets the workers finish the
// messages already queued.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	cfg.AllowedUpdates = []string{"message"}
	updates := p.source.GetUpdatesChan(cfg)

	queues := make([]chan *tgbotapi.Message, p.workers)
	var g errgroup.Group
	for i := range queues {
		q := make(chan *tgbotapi.Message, workerQueueSize)
		queues[i] = q
		g.Go(func() error {
			for msg := range q {
				p.handle(ctx, msg)
			}
			return nil
		})
	}
	p.logger.Info("bot: polling started", "workers", p.workers)

	defer func() {
		for _, q := range queues {
			close(q)
		}
		_ = g.Wait()
		p.logger.Info("bot: polling stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Message == nil || u.Message.Chat == nil {
				continue
			}
			select {
			case queues[shard(u.Message.Chat.ID, p.workers)] <- u.Message:
			case <-ctx.Done():
				p.source.StopReceivingUpdates()
				return nil
			}
		}
	}
}

// handle recovers a panicking handler; the worker keeps serving its shard.
func (p *Poller) handle(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("bot: handler panic", "chat_id", msg.Chat.ID, "panic", r)
		}
	}()
	p.handler.HandleMessage(context.WithoutCancel(ctx), msg)
}

// shard maps a chat id (negative for groups) onto [0, n).
func shard(chatID int64, n int) int {
	s := chatID % int64(n)
	if s < 0 {
		s += int64(n)
	}
	return int(s)
}
