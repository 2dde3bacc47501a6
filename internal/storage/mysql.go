// Package storage persists processed videos to a MySQL-compatible database.
// The store owns its schema: migrations run at startup and are written to be
// safely re-runnable against an existing database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/lingvocast/ingest-worker/internal/config"
	"github.com/lingvocast/ingest-worker/internal/models"
)

// MySQLError numbers safe to swallow during migration: table exists,
// duplicate column, duplicate key.
var ignorableMigrationErrors = map[uint16]bool{
	1050: true,
	1060: true,
	1061: true,
}

// Store wraps the database handle.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open connects to MySQL and verifies the connection. A single connection
// keeps ordering simple for the one-writer batch pipeline.
func Open(cfg config.Database, log *zap.SugaredLogger) (*Store, error) {
	mc := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		Collation:            "utf8mb4_unicode_ci",
		ParseTime:            true,
		AllowNativePasswords: true,
	}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS video_learning_content (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    video_name VARCHAR(255) NOT NULL,
    video_url TEXT NOT NULL,
    duration_seconds INT NULL,
    transcription JSON NOT NULL,
    translation JSON NOT NULL,
    analysis JSON NOT NULL,
    exercises JSON NOT NULL,
    topics JSON NOT NULL,
    transcript_text MEDIUMTEXT NOT NULL,
    translation_text MEDIUMTEXT NOT NULL,
    cefr_level VARCHAR(8) NOT NULL,
    speech_speed VARCHAR(16) NOT NULL DEFAULT '',
    grammar_complexity VARCHAR(16) NOT NULL DEFAULT '',
    vocabulary_complexity VARCHAR(16) NOT NULL DEFAULT '',
    status ENUM('ready', 'hidden') NOT NULL DEFAULT 'ready',
    likes_count INT UNSIGNED NOT NULL DEFAULT 0,
    is_adult_content TINYINT(1) NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id),
    KEY idx_video_name (video_name),
    KEY idx_cefr_level (cefr_level),
    KEY idx_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE TABLE IF NOT EXISTS video_topics (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    video_id BIGINT UNSIGNED NOT NULL,
    topic VARCHAR(128) NOT NULL,
    PRIMARY KEY (id),
    KEY idx_topic (topic),
    CONSTRAINT fk_video_topics_video FOREIGN KEY (video_id)
        REFERENCES video_learning_content (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

ALTER TABLE video_learning_content ADD COLUMN duration_seconds INT NULL;
ALTER TABLE video_learning_content ADD COLUMN status ENUM('ready', 'hidden') NOT NULL DEFAULT 'ready';
ALTER TABLE video_learning_content ADD COLUMN likes_count INT UNSIGNED NOT NULL DEFAULT 0;
ALTER TABLE video_learning_content ADD COLUMN is_adult_content TINYINT(1) NOT NULL DEFAULT 0;
`

// Migrate applies the schema. Statements that fail because the object
// already exists are skipped so restarts against a migrated database are
// no-ops.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && ignorableMigrationErrors[myErr.Number] {
				s.log.Debugw("migration statement skipped", "mysql_error", myErr.Number)
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// InsertProcessedVideo persists the composite record and its topic rows in
// one transaction, returning the new row id.
func (s *Store) InsertProcessedVideo(ctx context.Context, pv models.ProcessedVideo) (int64, error) {
	transcription, err := json.Marshal(pv.Transcription)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal transcription: %w", err)
	}
	translation, err := json.Marshal(pv.Translation)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal translation: %w", err)
	}
	analysis, err := json.Marshal(pv.Analysis)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal analysis: %w", err)
	}
	exercises, err := json.Marshal(pv.Exercises)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal exercises: %w", err)
	}
	topics, err := json.Marshal(pv.Analysis.Topics)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal topics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO video_learning_content
			(video_name, video_url, duration_seconds, transcription, translation,
			 analysis, exercises, topics, transcript_text, translation_text,
			 cefr_level, speech_speed, grammar_complexity, vocabulary_complexity,
			 is_adult_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pv.VideoName, pv.VideoURL, pv.DurationSeconds,
		transcription, translation, analysis, exercises, topics,
		pv.Transcription.FullText, pv.Translation.FullText,
		pv.Analysis.CEFRLevel, pv.Analysis.SpeechSpeed,
		pv.Analysis.GrammarComplexity, pv.Analysis.VocabularyComplexity,
		pv.IsAdultContent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert video record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}

	for _, topic := range pv.Analysis.Topics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO video_topics (video_id, topic) VALUES (?, ?)`,
			id, topic,
		); err != nil {
			return 0, fmt.Errorf("failed to insert topic %q: %w", topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// Ensure pings the connection and reports whether the store is usable; the
// driver reconnects transparently on the next query after a dropped link.
func (s *Store) Ensure(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
