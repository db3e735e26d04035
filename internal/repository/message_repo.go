package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository handles database operations for Message
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message in one transaction: the row, the sender's receipt,
// the conversation's updated_at and the sender's last_read_at.
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}

		receipt := model.ReadReceipt{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: msg.CreatedAt}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt).Error; err != nil {
			return err
		}
		msg.ReadReceipts = []model.ReadReceipt{receipt}
		msg.ReadBy = []uuid.UUID{msg.SenderID}

		if err := touch(tx, msg.ConversationID, msg.CreatedAt); err != nil {
			return err
		}
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", msg.ConversationID, msg.SenderID).
			Update("last_read_at", msg.CreatedAt).Error
	})
}

// ListByConversation returns messages oldest first.
// With a cursor it returns the Limit messages immediately preceding opts.Before.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, opts model.ListOptions) ([]model.Message, error) {
	messages := []model.Message{}
	query := r.db.WithContext(ctx).
		Preload("ReadReceipts").
		Where("conversation_id = ?", conversationID)

	// Cursor-based pagination: get messages before a specific message
	if opts.Before != nil {
		var beforeMsg model.Message
		err := r.db.WithContext(ctx).
			Select("id", "created_at").
			Where("id = ? AND conversation_id = ?", *opts.Before, conversationID).
			First(&beforeMsg).Error
		if err != nil {
			return nil, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
			beforeMsg.CreatedAt, beforeMsg.CreatedAt, beforeMsg.ID)
	}

	if opts.Limit <= 0 {
		err := query.Order("created_at ASC, id ASC").Find(&messages).Error
		return messages, err
	}

	// newest page first, then flip
	err := query.Order("created_at DESC, id DESC").Limit(opts.Limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetLastMessage returns the most recent message in a conversation
func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Preload("ReadReceipts").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead records a receipt for every message in the conversation the user
// has not acknowledged yet (their own excluded) and sets their last_read_at.
// Returns the number of receipts added.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error) {
	var marked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
			Where("NOT EXISTS (SELECT 1 FROM read_receipts rr WHERE rr.message_id = messages.id AND rr.user_id = ?)", userID).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}

		if len(ids) > 0 {
			receipts := make([]model.ReadReceipt, 0, len(ids))
			for _, id := range ids {
				receipts = append(receipts, model.ReadReceipt{MessageID: id, UserID: userID, ReadAt: at})
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(receipts, 200)
			if res.Error != nil {
				return res.Error
			}
			marked = res.RowsAffected
		}

		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("last_read_at", at).Error
	})
	return marked, err
}
