package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"promarket/internal/app/apperr"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// storage.ProposalRepository interface implementation
var _ storage.ProposalRepository = (*ProposalRepository)(nil)

type ProposalRepository struct {
	db *sql.DB
}

func (r *ProposalRepository) LoggerComponent() string {
	return "ProposalRepository"
}

func NewProposalRepository(db *sql.DB) (*ProposalRepository, error) {
	s := &ProposalRepository{
		db: db,
	}
	return s, nil
}

// Create implementation of interface storage.ProposalRepository
func (r *ProposalRepository) Create(ctx context.Context, m *model.Proposal) (*model.Proposal, error) {
	if m.JobID == "" {
		return nil, apperr.ErrInvalidInput
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()

	const SQL = `
		INSERT INTO proposals (id, account_id, job_id, cover_letter, created_at)
		VALUES ($1, $2, $3, $4, $5)
`

	_, err := r.db.ExecContext(ctx, SQL, m.ID, m.AccountID, m.JobID, m.CoverLetter, m.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				return nil, apperr.ErrConflict
			}
		}

		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// AllByAccountID implementation of interface storage.ProposalRepository
func (r *ProposalRepository) AllByAccountID(ctx context.Context, accountID uuid.UUID) ([]*model.Proposal, error) {
	l := logger.Ctx(ctx).With().Str("method", "AllByAccountID").Logger()

	const SQL = `
		SELECT id, account_id, job_id, cover_letter, created_at
		FROM proposals
		WHERE account_id=$1
		ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, SQL, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*model.Proposal{}, nil
		}
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.Proposal, 0)

	for rows.Next() {
		m := &model.Proposal{}
		if err := rows.Scan(&m.ID, &m.AccountID, &m.JobID, &m.CoverLetter, &m.CreatedAt); err != nil {
			l.Debug().Err(err).Send()
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}
