// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/snapwebsites/snapdbproxy/internal/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

func applyMigrations(driver string, db *sql.DB) error {
	var m *migrate.Migrate

	switch driver {
	case "sqlite3":
		dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return err
		}
		src, err := iofs.New(migrationFiles, "migrations/sqlite3")
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite3", dbDriver)
		if err != nil {
			return err
		}
	case "mysql":
		dbDriver, err := mysql.WithInstance(db, &mysql.Config{})
		if err != nil {
			return err
		}
		src, err := iofs.New(migrationFiles, "migrations/mysql")
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", dbDriver)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("audit: unsupported migration driver %q", driver)
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			return nil
		}
		return fmt.Errorf("audit: applying migrations: %w", err)
	}
	log.Info("audit: database schema up to date")
	return nil
}
