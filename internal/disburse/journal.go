package disburse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/pkg/database"
)

// Journal is the accounting sink invoked once per accepted transaction.
type Journal interface {
	Post(ctx context.Context, entry *models.JournalEntry) error
}

// TxJournal is implemented by journals whose writes can join a database
// transaction. External sinks that cannot simply post outside it.
type TxJournal interface {
	WithTx(tx *sql.Tx) Journal
}

// PostgresJournal writes journal entries to the local ledger table.
type PostgresJournal struct {
	db database.Querier
}

// NewPostgresJournal creates a journal backed by Postgres
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// WithTx returns a journal whose entries are posted inside tx.
func (j *PostgresJournal) WithTx(tx *sql.Tx) Journal {
	return &PostgresJournal{db: tx}
}

// Post records one debit/credit entry for a settled transaction.
func (j *PostgresJournal) Post(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.PostingDate.IsZero() {
		entry.PostingDate = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO disburser.journal_entries
			(id, transaction_id, posting_date, debit_account, credit_account, amount, party_type, party)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TransactionID, entry.PostingDate,
		entry.DebitAccount, entry.CreditAccount, entry.Amount,
		entry.PartyType, entry.Party)
	if err != nil {
		return fmt.Errorf("failed to post journal entry: %w", err)
	}

	return nil
}
