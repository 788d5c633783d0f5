// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package audit durably records every accepted MODIFYSETTINGS/
// MANAGERSTATUS bus event so an operator can reconstruct what changed on
// a host and when, outliving any one daemon's in-memory state: sqlx over
// a sqlhooks-wrapped driver, schema brought up with golang-migrate,
// queries built with squirrel.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
	"github.com/snapwebsites/snapdbproxy/internal/log"
)

// Store owns the audit log connection.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the audit log database, registering a query-timing
// hook the first time a given driver is used.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case "sqlite3":
		if !slices.Contains(sql.Drivers(), "sqlite3WithHooks") {
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryLogHook{}))
		}
		db, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		db, err = sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true", dsn))
		if err == nil {
			db.SetConnMaxLifetime(3 * time.Minute)
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(10)
		}
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s database: %w", driver, err)
	}

	if err := applyMigrations(driver, db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, driver: driver}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryLogHook logs every statement's duration at debug level.
type queryLogHook struct{}

func (h *queryLogHook) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, hookStartKey{}, time.Now()), nil
}

func (h *queryLogHook) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if start, ok := ctx.Value(hookStartKey{}).(time.Time); ok {
		log.Debugf("audit: %q took %s", query, time.Since(start))
	}
	return ctx, nil
}

type hookStartKey struct{}
