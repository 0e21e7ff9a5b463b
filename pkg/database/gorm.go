package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/listening-room-system/pkg/models"
)

// DB is the gorm-backed Store. Inside InTx the embedded *gorm.DB is the
// transaction handle.
type DB struct {
	*gorm.DB
}

var _ Store = (*DB)(nil)

// NewMySQLDB connects to MySQL. clientFoundRows makes RowsAffected count
// matched rows, which the conditional updates rely on.
func NewMySQLDB(host, port, user, password, dbname string, production bool) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		user, password, host, port, dbname)
	return open(mysql.Open(dsn), production)
}

func NewPostgresDB(host, port, user, password, dbname, sslmode string, production bool) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		host, port, user, password, dbname, sslmode)
	return open(postgres.Open(dsn), production)
}

// NewSQLiteDB opens a single-file database through the pure-Go SQLite
// driver. SQLite serializes writers, so the pool holds one connection.
func NewSQLiteDB(path string, production bool) (*DB, error) {
	db, err := open(sqlite.Open(path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), production)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func open(dialector gorm.Dialector, production bool) (*DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	if production {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.DJQueueEntry{},
		&models.Vote{},
		&models.SongHistoryEntry{},
	)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return err
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (db *DB) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{DB: tx})
	})
}

// User operations
func (db *DB) EnsureUser(ctx context.Context, user *models.User) error {
	return translate(db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error)
}

func (db *DB) SetAdmin(ctx context.Context, userID uuid.UUID, admin bool) error {
	res := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("is_admin", admin)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Room operations
func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	return translate(db.WithContext(ctx).Create(room).Error)
}

func (db *DB) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (db *DB) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&room, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (db *DB) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "slug = ?", slug).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (db *DB) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Room{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (db *DB) UpdateRoomSettings(ctx context.Context, id uuid.UUID, s RoomSettings) error {
	patch := map[string]any{}
	if s.Name != nil {
		patch["name"] = *s.Name
	}
	if s.Description != nil {
		patch["description"] = *s.Description
	}
	if s.LameThreshold != nil {
		patch["lame_threshold"] = *s.LameThreshold
	}
	if s.OwnerID != nil {
		patch["owner_id"] = *s.OwnerID
	}
	if len(patch) == 0 {
		return nil
	}
	res := db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoom removes the room and everything hanging off it.
func (db *DB) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return db.InTx(ctx, func(t Tx) error {
		tx := t.(*DB).DB
		for _, m := range []any{&models.Vote{}, &models.DJQueueEntry{}, &models.SongHistoryEntry{}} {
			if err := tx.Where("room_id = ?", id).Delete(m).Error; err != nil {
				return translate(err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Room{})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Playback operations
func (db *DB) SetPlayback(ctx context.Context, roomID uuid.UUID, p models.Playback) error {
	var r models.Room
	r.ApplyPlayback(p)
	res := db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", roomID).Updates(map[string]any{
		"current_dj_id":           nullable(r.CurrentDJID),
		"active_dj_spot":          nullable(r.ActiveDJSpot),
		"current_track_source":    nullable(r.CurrentTrackSource),
		"current_track_video_id":  nullable(r.CurrentTrackVideoID),
		"current_track_url":       nullable(r.CurrentTrackURL),
		"current_track_title":     nullable(r.CurrentTrackTitle),
		"current_track_thumbnail": nullable(r.CurrentTrackThumbnail),
		"video_started_at":        nullable(r.VideoStartedAt),
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) ActivateDJIfIdle(ctx context.Context, roomID, userID uuid.UUID, spot int) (bool, error) {
	res := db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND current_dj_id IS NULL", roomID).
		Updates(map[string]any{"current_dj_id": userID, "active_dj_spot": spot})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *DB) ClaimSkip(ctx context.Context, roomID uuid.UUID, now time.Time, staleBefore *time.Time) (bool, error) {
	q := db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", roomID)
	if staleBefore != nil {
		q = q.Where("(last_skipped_at IS NULL OR last_skipped_at < ?)", *staleBefore)
	}
	res := q.Update("last_skipped_at", now)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Queue operations
func (db *DB) ListQueue(ctx context.Context, roomID uuid.UUID) ([]models.DJQueueEntry, error) {
	var entries []models.DJQueueEntry
	if err := db.WithContext(ctx).Where("room_id = ?", roomID).Order("spot ASC").Find(&entries).Error; err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

func (db *DB) GetQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (*models.DJQueueEntry, error) {
	var entry models.DJQueueEntry
	if err := db.WithContext(ctx).First(&entry, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (db *DB) InsertQueueEntry(ctx context.Context, entry *models.DJQueueEntry) error {
	return translate(db.WithContext(ctx).Create(entry).Error)
}

func (db *DB) UpdateQueueSongs(ctx context.Context, roomID, userID uuid.UUID, songs models.TrackList) error {
	res := db.WithContext(ctx).Model(&models.DJQueueEntry{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("songs", songs)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteQueueEntry(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	res := db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&models.DJQueueEntry{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Vote operations
func (db *DB) GetVote(ctx context.Context, roomID, userID uuid.UUID, trackKey string) (*models.Vote, error) {
	var vote models.Vote
	err := db.WithContext(ctx).
		First(&vote, "room_id = ? AND user_id = ? AND track_key = ?", roomID, userID, trackKey).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vote, nil
}

func (db *DB) InsertVote(ctx context.Context, vote *models.Vote) error {
	return translate(db.WithContext(ctx).Create(vote).Error)
}

func (db *DB) UpdateVoteType(ctx context.Context, id uuid.UUID, voteType models.VoteType) error {
	res := db.WithContext(ctx).Model(&models.Vote{}).Where("id = ?", id).Update("vote_type", voteType)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteVote(ctx context.Context, id uuid.UUID) error {
	return translate(db.WithContext(ctx).Where("id = ?", id).Delete(&models.Vote{}).Error)
}

func (db *DB) ListVotes(ctx context.Context, roomID uuid.UUID, trackKey string) ([]models.Vote, error) {
	var votes []models.Vote
	err := db.WithContext(ctx).
		Where("room_id = ? AND track_key = ?", roomID, trackKey).
		Order("created_at ASC").
		Find(&votes).Error
	if err != nil {
		return nil, translate(err)
	}
	return votes, nil
}

// History operations
func (db *DB) AppendHistory(ctx context.Context, entry *models.SongHistoryEntry) error {
	return translate(db.WithContext(ctx).Create(entry).Error)
}

func (db *DB) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]models.SongHistoryEntry, error) {
	var entries []models.SongHistoryEntry
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("played_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}
