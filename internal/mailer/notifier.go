package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Notifier renders account emails and hands them to the dispatcher. A nil
// error means the message was queued, not that it was delivered.
type Notifier struct {
	renderer   *Renderer
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewNotifier(renderer *Renderer, dispatcher *Dispatcher, logger *zap.Logger) *Notifier {
	return &Notifier{
		renderer:   renderer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (n *Notifier) SendVerificationEmail(_ context.Context, email, userName, token string) error {
	msg, err := n.renderer.Verification(email, userName, token)
	if err != nil {
		return err
	}
	return n.enqueue(KindVerification, msg)
}

func (n *Notifier) SendPasswordResetEmail(_ context.Context, email, userName, token string) error {
	msg, err := n.renderer.PasswordReset(email, userName, token)
	if err != nil {
		return err
	}
	return n.enqueue(KindPasswordReset, msg)
}

// enqueue logs the job ID so delivery can be followed through the mail
// job endpoint.
func (n *Notifier) enqueue(kind Kind, msg *Message) error {
	job, err := n.dispatcher.Enqueue(kind, msg)
	if err != nil {
		return fmt.Errorf("failed to queue %s email: %w", kind, err)
	}
	n.logger.Info("email queued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)))
	return nil
}
