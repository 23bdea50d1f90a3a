package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardsync/internal/domain"
)

type BoardRepo struct {
	pool *pgxpool.Pool
}

func NewBoardRepo(pool *pgxpool.Pool) *BoardRepo {
	return &BoardRepo{pool: pool}
}

// GetSnapshot loads the board with its columns and cards in display order.
// The three reads share one repeatable-read transaction so the tree is
// consistent.
func (r *BoardRepo) GetSnapshot(ctx context.Context, boardID string) (*domain.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var b domain.Board
	err = tx.QueryRow(ctx,
		`SELECT id, title, description, background, updated_at
		 FROM boards WHERE id = $1`,
		boardID,
	).Scan(&b.ID, &b.Title, &b.Description, &b.Background, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: board: %w", err)
	}

	columns, err := r.columns(ctx, tx, boardID)
	if err != nil {
		return nil, err
	}

	cards, err := r.cards(ctx, tx, boardID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: commit: %w", err)
	}

	return assemble(b, columns, cards), nil
}

func (r *BoardRepo) columns(ctx context.Context, tx pgx.Tx, boardID string) ([]domain.Column, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, board_id, title, color, position
		 FROM columns WHERE board_id = $1
		 ORDER BY position, id`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: columns: %w", err)
	}
	defer rows.Close()

	var columns []domain.Column
	for rows.Next() {
		var c domain.Column

		err = rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Color, &c.Position)
		if err != nil {
			return nil, fmt.Errorf("boardRepo.GetSnapshot: scan column: %w", err)
		}
		columns = append(columns, c)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: column rows: %w", err)
	}

	return columns, nil
}

func (r *BoardRepo) cards(ctx context.Context, tx pgx.Tx, boardID string) ([]domain.Card, error) {
	rows, err := tx.Query(ctx,
		`SELECT c.id, c.column_id, c.title, c.description, c.labels,
		        c.assignee_id, c.due_at, c.position, c.created_at, c.updated_at
		 FROM cards c JOIN columns col ON col.id = c.column_id
		 WHERE col.board_id = $1
		 ORDER BY c.column_id, c.position, c.id`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card

		err = rows.Scan(
			&c.ID, &c.ColumnID, &c.Title, &c.Description, &c.Labels,
			&c.AssigneeID, &c.DueAt, &c.Position, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("boardRepo.GetSnapshot: scan card: %w", err)
		}
		cards = append(cards, c)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetSnapshot: card rows: %w", err)
	}

	return cards, nil
}

// assemble nests cards under their columns. Input cards must already be in
// position order; cards whose column is missing are dropped.
func assemble(b domain.Board, columns []domain.Column, cards []domain.Card) *domain.Snapshot {
	index := make(map[string]int, len(columns))
	for i := range columns {
		columns[i].Cards = []domain.Card{}
		index[columns[i].ID] = i
	}
	for _, c := range cards {
		i, ok := index[c.ColumnID]
		if !ok {
			continue
		}
		columns[i].Cards = append(columns[i].Cards, c)
	}
	if columns == nil {
		columns = []domain.Column{}
	}
	return &domain.Snapshot{Board: b, Columns: columns}
}
