package notifications

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

// MaxMarkBatch bounds how many ids one mark-read call may carry.
const MaxMarkBatch = 100

// Service is the inbox surface behind the notifications routes.
type Service interface {
	Inbox(ctx context.Context, q InboxQuery) (*InboxPage, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error)
}

// InboxQuery selects one page of a user's inbox. An empty Role spans every
// role the user has received notifications in.
type InboxQuery struct {
	UserID     uuid.UUID
	Role       enums.Role
	Limit      int
	Cursor     string
	UnreadOnly bool
}

type InboxPage struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	Unread     int64  `json:"unread"`
}

// Item is the client view of a notification row.
type Item struct {
	ID        uuid.UUID              `json:"id"`
	Role      enums.Role             `json:"role"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]any         `json:"data,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func newItem(row models.Notification) Item {
	return Item{
		ID:        row.ID,
		Role:      row.Role,
		Type:      row.Type,
		Title:     row.Title,
		Body:      row.Body,
		Data:      row.Data,
		ReadAt:    row.ReadAt,
		CreatedAt: row.CreatedAt,
	}
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Inbox(ctx context.Context, q InboxQuery) (*InboxPage, error) {
	scope, err := newScope(q.UserID, q.Role)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.Parse(q.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	unread, err := s.repo.CountUnread(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	scope.UnreadOnly = q.UnreadOnly
	rows, next, err := s.repo.Page(ctx, scope, cursor, q.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := &InboxPage{Items: make([]Item, 0, len(rows)), Unread: unread}
	for _, row := range rows {
		page.Items = append(page.Items, newItem(row))
	}
	if next != nil {
		page.NextCursor = next.String()
	}
	return page, nil
}

// MarkRead marks ids as read for userID and returns how many changed state.
// Ids already read count as owned but not updated. If any id is unknown or
// belongs to someone else, nothing is marked.
func (s *service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	ids = slices.Compact(slices.SortedFunc(slices.Values(ids), func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	}))
	switch {
	case len(ids) == 0:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one notification id required")
	case len(ids) > MaxMarkBatch:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "too many notification ids")
	case slices.Contains(ids, uuid.Nil):
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	out, err := s.repo.MarkRead(ctx, userID, ids, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	if out.Owned != int64(len(ids)) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return out.Updated, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error) {
	scope, err := newScope(userID, role)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, scope, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func newScope(userID uuid.UUID, role enums.Role) (inboxScope, error) {
	if userID == uuid.Nil {
		return inboxScope{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if role != "" && !role.IsValid() {
		return inboxScope{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown role")
	}
	return inboxScope{UserID: userID, Role: role}, nil
}
