package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/metrics"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/service"
)

// meteredNotifier counts push outcomes
type meteredNotifier struct {
	next    service.Notifier
	metrics *metrics.Metrics
}

func (n *meteredNotifier) SendMessageNotification(ctx context.Context, receiverID uuid.UUID, msg *model.Message) error {
	err := n.next.SendMessageNotification(ctx, receiverID, msg)
	n.metrics.PushResult(err == nil)
	return err
}
