package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCallEnded is returned when mutating a call that has already ended
var ErrCallEnded = errors.New("call has ended")

// CallRepository handles database operations for CallSession
type CallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

// Create inserts a call together with its initial participants
func (r *CallRepository) Create(ctx context.Context, call *model.CallSession) error {
	return r.db.WithContext(ctx).Create(call).Error
}

// FindByID finds a call by ID with participants
func (r *CallRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CallSession, error) {
	var call model.CallSession
	err := r.db.WithContext(ctx).
		Preload("Participants", preloadParticipants).
		Where("id = ?", id).
		First(&call).Error
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// ListOpenForConversation returns ringing or active calls of a conversation
func (r *CallRepository) ListOpenForConversation(ctx context.Context, conversationID uuid.UUID) ([]model.CallSession, error) {
	calls := []model.CallSession{}
	err := r.db.WithContext(ctx).
		Preload("Participants", preloadParticipants).
		Where("conversation_id = ? AND status <> ?", conversationID, model.CallStatusEnded).
		Order("started_at DESC").
		Find(&calls).Error
	return calls, err
}

// AddParticipant moves the call to active and adds the user if absent.
// The bool reports whether a row was inserted; a concurrent join of the same user gets false.
// Returns ErrCallEnded when the call is already over.
func (r *CallRepository) AddParticipant(ctx context.Context, callID uuid.UUID, p model.CallParticipant) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CallSession{}).
			Where("id = ? AND status <> ?", callID, model.CallStatusEnded).
			Update("status", model.CallStatusActive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCallEnded
		}

		p.CallID = callID
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	return inserted, err
}

// RemoveParticipant drops the user from the call's participant list
func (r *CallRepository) RemoveParticipant(ctx context.Context, callID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Delete(&model.CallParticipant{}).Error
}

// End marks the call ended. Returns ErrCallEnded if it already was.
func (r *CallRepository) End(ctx context.Context, callID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.CallSession{}).
		Where("id = ? AND status <> ?", callID, model.CallStatusEnded).
		Updates(map[string]interface{}{
			"status":   model.CallStatusEnded,
			"ended_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCallEnded
	}
	return nil
}
