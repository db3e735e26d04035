package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/hubtalk/internal/config"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/internal/service"
	"github.com/quocanhngo/hubtalk/migrations"
	"github.com/quocanhngo/hubtalk/pkg/auth"
	"github.com/quocanhngo/hubtalk/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type seedUser struct {
	name  string
	email string
	role  model.UserRole
}

var seedUsers = []seedUser{
	{"Nguyen Thi Lan", "lan.teacher@hubtalk.local", model.UserRoleTeacher},
	{"Tran Van Hoa", "hoa.teacher@hubtalk.local", model.UserRoleTeacher},
	{"Le Minh", "minh@hubtalk.local", model.UserRoleStudent},
	{"Pham Thu", "thu@hubtalk.local", model.UserRoleStudent},
	{"Vo Quang", "quang@hubtalk.local", model.UserRoleStudent},
	{"Dang Mai", "mai@hubtalk.local", model.UserRoleStudent},
}

const demoGroupName = "Grade 10 Physics"

func main() {
	cfg, _ := config.Load()
	log := logger.New(logger.DevelopmentMode)
	defer log.Sync()

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		log.Warn("migration failed, falling back to AutoMigrate", zap.Error(err))
		if err := db.AutoMigrate(model.All()...); err != nil {
			log.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	ctx := context.Background()
	userRepo := repository.NewUserRepository(db)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	users := make([]*model.User, 0, len(seedUsers))
	for _, su := range seedUsers {
		u, err := ensureUser(ctx, userRepo, su)
		if err != nil {
			log.Fatal("failed to seed user", zap.String("email", su.email), zap.Error(err))
		}
		users = append(users, u)

		token, err := jwtManager.GenerateToken(u.ID, u.Name, string(u.Role))
		if err != nil {
			log.Fatal("failed to sign token", zap.Error(err))
		}
		fmt.Printf("%-8s %-28s %s\n", u.Role, u.Email, token)
	}

	chatService := service.NewChatService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		userRepo,
		nil, nil, log,
	)
	if err := seedGroup(ctx, db, chatService, users); err != nil {
		log.Fatal("failed to seed demo group", zap.Error(err))
	}

	log.Info("seeding completed", zap.Int("users", len(users)))
}

func ensureUser(ctx context.Context, repo *repository.UserRepository, su seedUser) (*model.User, error) {
	existing, err := repo.FindByEmail(ctx, su.email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u := &model.User{
		Name:      su.name,
		Email:     su.email,
		Role:      su.role,
		AvatarURL: fmt.Sprintf("https://api.dicebear.com/7.x/initials/svg?seed=%s", su.name),
	}
	if err := repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// seedGroup creates the demo class group once, led by the first teacher
func seedGroup(ctx context.Context, db *gorm.DB, chat *service.ChatService, users []*model.User) error {
	var count int64
	if err := db.Model(&model.Conversation{}).Where("name = ?", demoGroupName).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	teacher := users[0]
	var members []uuid.UUID
	for _, u := range users[1:] {
		members = append(members, u.ID)
	}

	group, _, err := chat.CreateConversation(ctx, teacher.ID, model.CreateConversationRequest{
		Type:           model.ConversationTypeGroup,
		Name:           demoGroupName,
		Description:    "Questions about homework and lab sessions",
		ParticipantIDs: members,
	})
	if err != nil {
		return err
	}

	_, err = chat.SendMessage(ctx, group.ID, teacher.ID, model.SendMessageRequest{
		Content: "Welcome to the class group! Post your questions here.",
	})
	return err
}
