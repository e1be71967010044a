// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())
}

func TestOpenPersistent(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	db, err := Open(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	err = db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopen and read back.
	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("v"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithTxnDiscardsOnError(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sentinel := assert.AnError

	err = db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set([]byte("doomed"), []byte("x")); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		_, err := txn.Get([]byte("doomed"))
		assert.ErrorIs(t, err, dgbadger.ErrKeyNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTxnRespectsCancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		t.Fatal("transaction body should not run")
		return nil
	})
	assert.Error(t, err)
}

func TestConcurrentWriteConflict(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("counter"), []byte("0"))
	}))

	// Two transactions read the same key; the second commit must fail.
	txn1 := db.NewTransaction(true)
	defer txn1.Discard()
	txn2 := db.NewTransaction(true)
	defer txn2.Discard()

	_, err = txn1.Get([]byte("counter"))
	require.NoError(t, err)
	_, err = txn2.Get([]byte("counter"))
	require.NoError(t, err)

	require.NoError(t, txn1.Set([]byte("counter"), []byte("1")))
	require.NoError(t, txn2.Set([]byte("counter"), []byte("2")))

	require.NoError(t, txn1.Commit())
	assert.ErrorIs(t, txn2.Commit(), dgbadger.ErrConflict)
}
