package website

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// Store writes published articles into the remote website MySQL database.
// It is a plain row sink: the website renders whatever lands in
// website_articles, and the nid column is the only link back to the local
// store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(cfg *config.WebsiteDBConfig, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open website database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) ExistsByNID(ctx context.Context, nid uint) (bool, error) {
	var wid int64
	err := s.db.QueryRowContext(ctx,
		"SELECT wid FROM website_articles WHERE nid = ? LIMIT 1", nid).Scan(&wid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query website_articles for nid %d: %w", nid, err)
	}
	return true, nil
}

// Insert writes the article and returns the website-assigned row id.
func (s *Store) Insert(ctx context.Context, rec *models.PublishArticle) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO website_articles (nid, title, content_html, cover_url, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.NID, rec.Title, rec.ContentHTML, rec.CoverURL, rec.SourceURL, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert article nid %d: %w", rec.NID, err)
	}

	wid, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted row id: %w", err)
	}

	s.logger.Info("Inserted article into website database",
		zap.Uint("nid", rec.NID), zap.Int64("wid", wid))
	return wid, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
