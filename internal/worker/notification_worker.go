package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-ticketing/internal/notification"
	"github.com/spec-kit/support-ticketing/internal/service"
)

// MailWorker delivers queued customer emails in the background so request
// handlers never wait on SMTP.
type MailWorker struct {
	mailer notification.Mailer
	logger *zap.Logger
	queue  chan notification.Email

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewMailWorker creates a worker with a bounded queue.
func NewMailWorker(mailer notification.Mailer, queueSize int, logger *zap.Logger) *MailWorker {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{
		mailer: mailer,
		logger: logger,
		queue:  make(chan notification.Email, queueSize),
	}
}

// Start launches n delivery goroutines. They drain the queue after Stop.
func (w *MailWorker) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for email := range w.queue {
				if err := w.mailer.Send(ctx, email); err != nil {
					w.logger.Warn("mail delivery failed",
						zap.String("to", email.To),
						zap.String("subject", email.Subject),
						zap.Error(err))
				}
			}
		}()
	}
}

// Enqueue schedules email without blocking. It reports false when the queue
// is full or the worker has stopped.
func (w *MailWorker) Enqueue(email notification.Email) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- email:
		return true
	default:
		w.logger.Warn("mail queue full, dropping email", zap.String("to", email.To))
		return false
	}
}

// Stop closes the queue and waits for queued mail to be delivered.
func (w *MailWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}

// StartNotificationWorker registers notification handlers and, when a mail
// worker is given, starts delivery.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, mail *MailWorker, workers int) {
	if notificationService == nil {
		return
	}
	if mail != nil {
		mail.Start(ctx, workers)
	}
	notificationService.RegisterHandlers()
}
