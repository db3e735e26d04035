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

// ConversationRepository handles database operations for Conversation
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func preloadParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("joined_at ASC")
}

// Create inserts a conversation together with its participants
func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByID finds a conversation by ID with participants
func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", preloadParticipants).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindDirect finds the direct conversation between two users, in either order
func (r *ConversationRepository) FindDirect(ctx context.Context, userID1, userID2 uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", preloadParticipants).
		Where("type = ? AND direct_key = ?", model.ConversationTypeDirect, model.DirectKeyFor(userID1, userID2)).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns the user's non-archived conversations, latest activity first
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, opts model.ConversationListOptions) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	member := r.db.Model(&model.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)

	query := r.db.WithContext(ctx).
		Preload("Participants", preloadParticipants).
		Where("id IN (?) AND is_archived = ?", member, false).
		Order("updated_at DESC")
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	err := query.Find(&conversations).Error
	return conversations, err
}

// IsMember checks if a user is a participant of a conversation
func (r *ConversationRepository) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddMembers appends participants, skipping users who already belong, and bumps updated_at.
// It returns the members that were actually inserted.
func (r *ConversationRepository) AddMembers(ctx context.Context, conversationID uuid.UUID, members []model.ConversationMember, at time.Time) ([]model.ConversationMember, error) {
	added := []model.ConversationMember{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range members {
			members[i].ConversationID = conversationID
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members[i])
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				added = append(added, members[i])
			}
		}
		return touch(tx, conversationID, at)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveMember deletes a participant and bumps updated_at. Returns false if they were not a member.
// When the last admin leaves, the earliest-joined remaining member becomes admin.
func (r *ConversationRepository) RemoveMember(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Delete(&model.ConversationMember{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		if !removed {
			return nil
		}

		var admins int64
		if err := tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND is_admin = ?", conversationID, true).
			Count(&admins).Error; err != nil {
			return err
		}
		if admins == 0 {
			var next model.ConversationMember
			err := tx.Where("conversation_id = ?", conversationID).Order("joined_at ASC").First(&next).Error
			switch {
			case err == nil:
				if err := tx.Model(&next).Update("is_admin", true).Error; err != nil {
					return err
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		return touch(tx, conversationID, at)
	})
	return removed, err
}

// Archive soft-deletes a conversation from listings
func (r *ConversationRepository) Archive(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("is_archived", true).Error
}

// touch bumps updated_at (to sort by latest activity)
func touch(tx *gorm.DB, conversationID uuid.UUID, at time.Time) error {
	return tx.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", at).Error
}
