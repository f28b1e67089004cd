package app

import (
	"context"

	"github.com/google/uuid"

	"dmflow/internal/dispatch"
	"dmflow/pkg/logx"
)

// dryRunSender stands in for the Graph API when no credentials are
// configured: every send succeeds locally with a synthetic message id.
type dryRunSender struct {
	log logx.Logger
}

func (s dryRunSender) Send(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error) {
	id := "dry_" + uuid.NewString()
	s.log.Info("dry-run send",
		logx.String("recipient", req.RecipientUserID),
		logx.String("message_id", id),
		logx.Int("chars", len(req.Message)))
	return dispatch.SendResult{MessageID: id}, nil
}
