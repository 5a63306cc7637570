package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/MersadMolaei/Pixelizer/pkg/models"
)

const (
	CREATE_REQUEST_TABLE = `CREATE TABLE IF NOT EXISTS requests(
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		status VARCHAR(255) NOT NULL,
		source_url VARCHAR(2048) NOT NULL,
		result_url VARCHAR(2048) NOT NULL,
		archived VARCHAR(255) NOT NULL
	);`
)

type RequestDatabase interface {
	CreateRequest(ctx context.Context, email, sourceURL string) (int, error)
	GetRequestByID(ctx context.Context, id int) (*models.Request, error)
	UpdateResult(ctx context.Context, id int, resultURL, archived string) error
}

type RequestDatabaseImpl struct {
	db *sqlx.DB
}

func NewRequestDatabase(autoCreate bool, db *sqlx.DB) (*RequestDatabaseImpl, error) {
	if autoCreate {
		if _, err := db.Exec(CREATE_REQUEST_TABLE); err != nil {
			return nil, err
		}
	}
	return &RequestDatabaseImpl{db: db}, nil
}

func (r *RequestDatabaseImpl) CreateRequest(ctx context.Context, email, sourceURL string) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO requests(email, status, source_url, result_url, archived) VALUES($1, $2, $3, $4, $5) RETURNING id",
		email, models.TaskPending, sourceURL, "", "").Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RequestDatabaseImpl) GetRequestByID(ctx context.Context, id int) (*models.Request, error) {
	request := &models.Request{}
	err := r.db.GetContext(ctx, request, "SELECT * FROM requests WHERE id=$1", id)
	if err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateResult marks the request completed with its pixelized image URL and
// archived object name; an empty resultURL marks it failed.
func (r *RequestDatabaseImpl) UpdateResult(ctx context.Context, id int, resultURL, archived string) error {
	status := models.TaskCompleted
	if resultURL == "" {
		status = models.TaskFailed
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE requests SET status=$1, result_url=$2, archived=$3 WHERE id=$4",
		status, resultURL, archived, id)
	if err != nil {
		return err
	}
	return nil
}
