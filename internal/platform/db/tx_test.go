package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	txs  []*fakeTx
	opts []pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	b.opts = append(b.opts, opts)
	return tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{}
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, b.txs, 1)
	require.True(t, b.txs[0].committed)
	require.Equal(t, pgx.ReadCommitted, b.opts[0].IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, b.txs, 1)
	require.True(t, b.txs[0].rolledBack)
	require.False(t, b.txs[0].committed)
}

func TestWithTxRetriesDeadlocks(t *testing.T) {
	b := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("lock: %w", &pgconn.PgError{Code: CodeDeadlockDetected})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, b.txs[2].committed)
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	b := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: CodeSerializationFailure}
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Equal(t, MaxAttempts, calls)
}

func TestCodeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation})
	require.True(t, IsUniqueViolation(wrapped))
	require.False(t, IsRetryable(wrapped))
	require.Empty(t, Code(errors.New("plain")))
}
