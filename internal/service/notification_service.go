package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"
)

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSMS   NotificationType = "sms"
)

var ErrServiceStopped = errors.New("notification service stopped")

// NotificationService fans account notices out to a pool of workers. It
// never blocks a ledger operation: callers enqueue after the operation has
// returned.
type NotificationService struct {
	emailService EmailService
	smsService   SMSService
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SMSService interface {
	SendSMS(to, message string) error
}

func NewNotificationService(
	emailService EmailService,
	smsService SMSService,
	workers int,
	queueSize int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1000
	}

	service := &NotificationService{
		emailService: emailService,
		smsService:   smsService,
		messageQueue: make(chan NotificationMessage, queueSize),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// NotifyRejectedTransaction tells the account holder that an operation was
// refused by an account rule. Successful records are ignored.
func (s *NotificationService) NotifyRejectedTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.Succeeded() {
		return nil
	}

	notification := NotificationMessage{
		Type:      NotificationEmail,
		Recipient: tx.AccountNumber(),
		Subject:   fmt.Sprintf("%s declined", tx.Type()),
		Message: fmt.Sprintf("Your %s of %s on account %s was declined: %s. Your balance is still %s.",
			tx.Type(), tx.Amount().StringFixed(2), tx.AccountNumber(), tx.FailureReason(), tx.BalanceAfter().StringFixed(2)),
		Metadata: map[string]string{
			"transaction_id":   tx.ID(),
			"transaction_type": string(tx.Type()),
		},
		CreatedAt: time.Now(),
	}

	return s.enqueue(ctx, notification)
}

// NotifyMonthlyAdjustments sends one SMS per account that was charged a fee
// or credited interest by a monthly run.
func (s *NotificationService) NotifyMonthlyAdjustments(ctx context.Context, report ledger.BatchReport) error {
	for _, entry := range report.Entries {
		if !entry.Amount.IsPositive() {
			continue
		}

		var message string
		switch entry.Type {
		case domain.TypeFee:
			message = fmt.Sprintf("A monthly fee of %s was charged to account %s.", entry.Amount.StringFixed(2), entry.AccountNumber)
		case domain.TypeInterest:
			message = fmt.Sprintf("Interest of %s was credited to account %s.", entry.Amount.StringFixed(2), entry.AccountNumber)
		default:
			continue
		}

		notification := NotificationMessage{
			Type:      NotificationSMS,
			Recipient: entry.AccountNumber,
			Subject:   "Monthly statement",
			Message:   message,
			Metadata: map[string]string{
				"transaction_id": entry.TransactionID,
				"adjustment":     string(entry.Type),
			},
			CreatedAt: time.Now(),
		}
		if err := s.enqueue(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) enqueue(ctx context.Context, notification NotificationMessage) error {
	select {
	case <-s.shutdownChan:
		return ErrServiceStopped
	default:
	}

	select {
	case s.messageQueue <- notification:
		s.logger.InfoContext(ctx, "Notification queued",
			slog.String("type", string(notification.Type)),
			slog.String("recipient", notification.Recipient),
			slog.String("transaction_id", notification.Metadata["transaction_id"]))
		return nil
	case <-s.shutdownChan:
		return ErrServiceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Debug("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain delivers whatever was queued before shutdown.
func (s *NotificationService) drain(workerID int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, workerID)
		default:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSMS:
		err = s.smsService.SendSMS(msg.Recipient, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogEmailService and LogSMSService deliver by writing to the log. They stand
// in for real gateways, which are outside this service.
type LogEmailService struct {
	Logger *slog.Logger
}

func (l LogEmailService) SendEmail(to, subject, body string) error {
	l.Logger.Info("Email delivered",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

type LogSMSService struct {
	Logger *slog.Logger
}

func (l LogSMSService) SendSMS(to, message string) error {
	l.Logger.Info("SMS delivered",
		slog.String("to", to),
		slog.String("message", message))
	return nil
}
