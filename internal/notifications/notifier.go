package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// Notification is an in-app message addressed to one user acting in one role.
type Notification struct {
	UserID uuid.UUID
	Role   enums.Role
	Type   enums.NotificationType
	Title  string
	Body   string
	Data   map[string]any
}

// Sender is the fire-and-forget surface used by domain services. Delivery
// failures never propagate to the caller.
type Sender interface {
	Notify(ctx context.Context, n Notification)
}

// Notifier persists notifications and logs failures.
type Notifier struct {
	repo Repository
	logg *logger.Logger
}

func NewNotifier(repo Repository, logg *logger.Logger) *Notifier {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Notifier{repo: repo, logg: logg}
}

func (n *Notifier) Notify(ctx context.Context, msg Notification) {
	if n == nil || n.repo == nil {
		return
	}
	// the request may already be finishing; the row is still worth writing
	ctx = context.WithoutCancel(ctx)
	if msg.UserID == uuid.Nil || !msg.Type.IsValid() {
		n.logg.Warn(n.logg.WithField(ctx, "notification_type", string(msg.Type)), "dropping notification without recipient or type")
		return
	}
	row := &models.Notification{
		UserID: msg.UserID,
		Role:   msg.Role,
		Type:   msg.Type,
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
	}
	if err := n.repo.Create(ctx, row); err != nil {
		fields := map[string]any{
			"notification_type": string(msg.Type),
			"recipient_id":      msg.UserID.String(),
		}
		n.logg.Error(n.logg.WithFields(ctx, fields), "persist notification", err)
	}
}
