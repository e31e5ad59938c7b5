package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"invoice_integrity/internal/domain"
)

var ErrServiceClosed = errors.New("notification service closed")

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSlack NotificationType = "slack"
)

type NotificationService struct {
	emailService EmailService
	slackService SlackService
	targets      AlertTargets
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// AlertTargets names where fraud alerts are delivered.
type AlertTargets struct {
	SlackChannel  string
	SecurityEmail string
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  int
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SlackService interface {
	SendMessage(channel, message string) error
}

func NewNotificationService(
	emailService EmailService,
	slackService SlackService,
	targets AlertTargets,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	service := &NotificationService{
		emailService: emailService,
		slackService: slackService,
		targets:      targets,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// SendFraudAlert queues a Slack message and a security email for a flagged
// invoice. Delivery happens on the worker pool; a send failure is only logged.
func (s *NotificationService) SendFraudAlert(
	ctx context.Context,
	invoice *domain.Invoice,
	verdict domain.FraudVerdict,
) error {
	severity := string(verdict.Severity)
	message := fmt.Sprintf(
		"🚨 Fraud Alert!\nInvoice ID: %s\nSubmitter: %s\nInvoice Number: %s\nClient: %s <%s>\nTotal: %s\nSeverity: %s\nReasons:\n- %s",
		invoice.ID, invoice.SubmitterID, invoice.InvoiceNumber, invoice.ClientName, invoice.ClientEmail,
		invoice.Total, severity, strings.Join(verdict.Reasons, "\n- "),
	)

	notifications := []NotificationMessage{
		{
			Type:      NotificationSlack,
			Recipient: s.targets.SlackChannel,
			Subject:   fmt.Sprintf("Fraud Alert - %s", severity),
			Message:   message,
			Priority:  10,
			Metadata: map[string]string{
				"invoice_id": invoice.ID,
				"severity":   severity,
			},
			CreatedAt: time.Now(),
		},
		{
			Type:      NotificationEmail,
			Recipient: s.targets.SecurityEmail,
			Subject:   fmt.Sprintf("Fraud Alert: %s - %s", severity, invoice.ID),
			Message:   message,
			Priority:  10,
			Metadata: map[string]string{
				"invoice_id": invoice.ID,
				"severity":   severity,
			},
			CreatedAt: time.Now(),
		},
	}

	for _, notification := range notifications {
		if notification.Recipient == "" {
			continue
		}
		select {
		case <-s.shutdownChan:
			return ErrServiceClosed
		default:
		}

		select {
		case s.messageQueue <- notification:
			s.logger.WarnContext(ctx, "Fraud alert notification queued",
				slog.String("type", string(notification.Type)),
				slog.String("invoice_id", invoice.ID),
				slog.String("severity", severity))
		case <-s.shutdownChan:
			return ErrServiceClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
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
	case NotificationSlack:
		err = s.slackService.SendMessage(msg.Recipient, msg.Message)
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
	s.closeOnce.Do(func() { close(s.shutdownChan) })

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

// LogEmailService and LogSlackService hand notifications to the structured
// log. They stand in for real gateways until one is configured.
type LogEmailService struct {
	Logger *slog.Logger
}

func (l LogEmailService) SendEmail(to, subject, body string) error {
	logger(l.Logger).Warn("Email notification",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

type LogSlackService struct {
	Logger *slog.Logger
}

func (l LogSlackService) SendMessage(channel, message string) error {
	logger(l.Logger).Warn("Slack notification",
		slog.String("channel", channel),
		slog.String("message", message))
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

type SentEmail struct {
	To      string
	Subject string
	Body    string
}

type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []SentEmail
}

func (m *MockEmailService) SendEmail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{to, subject, body})
	return nil
}

func (m *MockEmailService) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.SentEmails...)
}

type SentMessage struct {
	Channel string
	Message string
}

type MockSlackService struct {
	mu       sync.Mutex
	Messages []SentMessage
	Err      error
}

func (m *MockSlackService) SendMessage(channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, SentMessage{channel, message})
	return nil
}

func (m *MockSlackService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Messages...)
}
