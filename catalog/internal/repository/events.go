package repository

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
)

// SaveLoanEvent ignores events that were already stored.
func (r *repository) SaveLoanEvent(ctx context.Context, e model.LoanEvent) error {
	query, args, err := r.qb.Insert(loanEventsTableName).
		Columns("id", "type", "book_id", "user_id", "user_name", "occurred_at", "due_date").
		Values(e.ID, string(e.Type), e.BookID, e.UserID, e.UserName, e.OccurredAt, e.DueDate).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "SaveLoanEvent")
	}
	return nil
}

// LoanStats aggregates stored events per user, most active first.
func (r *repository) LoanStats(ctx context.Context) ([]model.UserStats, error) {
	query, args, err := r.qb.Select("type", "user_id", "user_name", "occurred_at").
		From(loanEventsTableName).
		OrderBy("occurred_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Type       model.LoanEventType `db:"type"`
		UserID     string              `db:"user_id"`
		UserName   string              `db:"user_name"`
		OccurredAt time.Time           `db:"occurred_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "LoanStats")
	}

	byUser := make(map[string]*model.UserStats)
	for _, row := range rows {
		st, ok := byUser[row.UserID]
		if !ok {
			st = &model.UserStats{UserID: row.UserID}
			byUser[row.UserID] = st
		}
		st.UserName = row.UserName
		switch row.Type {
		case model.EventBorrowed:
			st.Borrowed++
		case model.EventReturned:
			st.Returned++
		}
		if row.OccurredAt.After(st.LastActivity) {
			st.LastActivity = row.OccurredAt
		}
	}

	out := make([]model.UserStats, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Borrowed != out[j].Borrowed {
			return out[i].Borrowed > out[j].Borrowed
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
