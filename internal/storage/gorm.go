package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// Options selects the database behind a GormStore. A non-empty
// PostgresDSN wins over SQLitePath.
type Options struct {
	SQLitePath  string
	PostgresDSN string
	Debug       bool
}

// GormStore is the relational Store.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenGorm connects, migrates and returns a ready store.
func OpenGorm(opts Options, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch {
	case strings.TrimSpace(opts.PostgresDSN) != "":
		dialector = postgres.Open(opts.PostgresDSN)
	case opts.SQLitePath != "":
		if dir := filepath.Dir(opts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(opts.SQLitePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	default:
		return nil, errors.New("storage: no database configured")
	}

	level := gormlogger.Silent
	if opts.Debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if dialector.Name() == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&chat.Session{}, &chat.Message{}, &assessment.Answer{}, &assessment.Result{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	logger.Named("storage").Info("database ready", zap.String("dialect", dialector.Name()))
	return &GormStore{db: db, logger: logger.Named("storage")}, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session chat.Session) (chat.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *GormStore) GetSession(ctx context.Context, id string) (chat.Session, error) {
	return getSession(s.db.WithContext(ctx), id)
}

func getSession(tx *gorm.DB, id string) (chat.Session, error) {
	var session chat.Session
	err := tx.Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *GormStore) ListSessions(ctx context.Context) ([]chat.Session, error) {
	var sessions []chat.Session
	err := s.db.WithContext(ctx).Order("updated_at DESC").Order("created_at DESC").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *GormStore) RenameSession(ctx context.Context, id, name string) (chat.Session, error) {
	var out chat.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&chat.Session{}).Where("id = ?", id).Update("name", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		var err error
		out, err = getSession(tx, id)
		return err
	})
	if err != nil {
		return chat.Session{}, wrapUnlessSentinel("rename session", err)
	}
	return out, nil
}

func (s *GormStore) DeleteSession(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&chat.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&chat.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	return wrapUnlessSentinel("delete session", err)
}

func (s *GormStore) UpdateLastMessage(ctx context.Context, id, content string, at time.Time) error {
	return wrapUnlessSentinel("update last message", touch(s.db.WithContext(ctx), id, content, at))
}

func touch(tx *gorm.DB, id, content string, at time.Time) error {
	res := tx.Model(&chat.Session{}).Where("id = ?", id).
		Updates(map[string]any{"last_message": content, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.SessionID == "" {
		return chat.Message{}, ErrSessionRequired
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getSession(tx, msg.SessionID); err != nil {
			return err
		}
		var last chat.Message
		err := tx.Where("session_id = ?", msg.SessionID).Order("created_at DESC").Limit(1).Find(&last).Error
		if err != nil {
			return err
		}
		msg.CreatedAt = nextCreatedAt(last.CreatedAt, msg.CreatedAt)
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return touch(tx, msg.SessionID, msg.Content, msg.CreatedAt)
	})
	if err != nil {
		return chat.Message{}, wrapUnlessSentinel("append message", err)
	}
	return msg, nil
}

func (s *GormStore) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	db := s.db.WithContext(ctx)
	if _, err := getSession(db, sessionID); err != nil {
		return nil, err
	}
	var messages []chat.Message
	if err := db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *GormStore) DeleteMessage(ctx context.Context, id string) (chat.Message, error) {
	var msg chat.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		return tx.Delete(&chat.Message{}, "id = ?", id).Error
	})
	if err != nil {
		return chat.Message{}, wrapUnlessSentinel("delete message", err)
	}
	return msg, nil
}

func (s *GormStore) ReplaceAnswers(ctx context.Context, kind assessment.Kind, date string, answers []assessment.Answer) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ? AND date = ?", kind, date).Delete(&assessment.Answer{}).Error; err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		rows := make([]assessment.Answer, len(answers))
		copy(rows, answers)
		for i := range rows {
			rows[i].ID = 0
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("replace answers: %w", err)
	}
	return nil
}

func (s *GormStore) AppendAnswer(ctx context.Context, answer assessment.Answer) (assessment.Answer, error) {
	answer.ID = 0
	if err := s.db.WithContext(ctx).Create(&answer).Error; err != nil {
		return assessment.Answer{}, fmt.Errorf("append answer: %w", err)
	}
	return answer, nil
}

func (s *GormStore) DeleteAnswersByDate(ctx context.Context, kind assessment.Kind, date string) error {
	err := s.db.WithContext(ctx).Where("kind = ? AND date = ?", kind, date).Delete(&assessment.Answer{}).Error
	if err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	return nil
}

func (s *GormStore) AnswersForDate(ctx context.Context, kind assessment.Kind, date string) ([]assessment.Answer, error) {
	var answers []assessment.Answer
	err := s.db.WithContext(ctx).Where("kind = ? AND date = ?", kind, date).
		Order("question_id ASC").Order("id ASC").Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("answers for date: %w", err)
	}
	return answers, nil
}

func (s *GormStore) TotalScoreForDate(ctx context.Context, kind assessment.Kind, date string) (int, error) {
	var total int
	err := s.db.WithContext(ctx).Model(&assessment.Answer{}).
		Where("kind = ? AND date = ?", kind, date).
		Select("COALESCE(SUM(score), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("total score: %w", err)
	}
	return total, nil
}

func (s *GormStore) AppendResult(ctx context.Context, result assessment.Result) (assessment.Result, error) {
	result.ID = 0
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&result).Error; err != nil {
		return assessment.Result{}, fmt.Errorf("append result: %w", err)
	}
	return result, nil
}

func (s *GormStore) ListResults(ctx context.Context, kind assessment.Kind) ([]assessment.Result, error) {
	q := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var results []assessment.Result
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// Ping checks the underlying connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrapUnlessSentinel(op string, err error) error {
	if err == nil || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrMessageNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
