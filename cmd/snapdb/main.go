// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command snapdb is a small data-browsing CLI that addresses the cluster
// directly, not through snapdbproxyd: `snapdb [flags] [table [row [cell
// [value]]]]` lists rows, lists a row's cells, reads one cell, or writes
// one cell, depending on how many positional arguments are given.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/gocql/gocql"
)

func main() {
	var (
		flagContext  string
		flagHost     string
		flagPort     int
		flagCount    int
		flagDropRow  bool
		flagDropCell bool
		flagYes      bool
		flagInfo     bool
	)

	flag.StringVar(&flagContext, "context", "snap_websites", "Name of the keyspace to read from.")
	flag.StringVar(&flagHost, "host", "localhost", "Host IP address or name.")
	flag.IntVar(&flagPort, "port", 9042, "Port on the host to connect to.")
	flag.IntVar(&flagCount, "count", 100, "Number of rows to display.")
	flag.BoolVar(&flagDropRow, "drop-row", false, "Drop the specified row (requires table and row).")
	flag.BoolVar(&flagDropCell, "drop-cell", false, "Drop the specified cell (requires table, row and cell).")
	flag.BoolVar(&flagYes, "yes-i-know-what-im-doing", false, "Force drop-row/drop-cell without a confirmation prompt.")
	flag.BoolVar(&flagInfo, "info", false, "Print the cluster name and protocol version, then exit.")
	flag.Parse()

	cluster := gocql.NewCluster(flagHost)
	cluster.Port = flagPort
	cluster.Keyspace = flagContext
	session, err := cluster.CreateSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapdb: connecting to %s:%d: %v\n", flagHost, flagPort, err)
		os.Exit(1)
	}
	defer session.Close()

	if flagInfo {
		runInfo(session)
		return
	}

	args := flag.Args()
	var table, row, cell, value string
	switch len(args) {
	case 4:
		value = args[3]
		fallthrough
	case 3:
		cell = args[2]
		fallthrough
	case 2:
		row = args[1]
		fallthrough
	case 1:
		table = args[0]
	case 0:
		fmt.Fprintln(os.Stderr, "snapdb: a table name is required; usage: snapdb [flags] table [row [cell [value]]]")
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "snapdb: too many positional arguments")
		os.Exit(1)
	}

	if flagDropRow || flagDropCell {
		if row == "" {
			fmt.Fprintln(os.Stderr, "snapdb: --drop-row/--drop-cell require a row")
			os.Exit(1)
		}
		if flagDropCell && cell == "" {
			fmt.Fprintln(os.Stderr, "snapdb: --drop-cell requires a cell")
			os.Exit(1)
		}
		if !flagYes && !confirmDrop(table, row, cell) {
			fmt.Fprintln(os.Stderr, "snapdb: aborted")
			os.Exit(1)
		}
		if flagDropCell {
			err = dropCell(session, flagContext, table, row, cell)
		} else {
			err = dropRow(session, flagContext, table, row)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "snapdb: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch {
	case cell != "" && value != "":
		err = writeCell(session, flagContext, table, row, cell, value)
	case cell != "":
		err = readCell(session, flagContext, table, row, cell)
	case row != "":
		err = listCells(session, flagContext, table, row)
	default:
		err = listRows(session, flagContext, table, flagCount)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapdb: %v\n", err)
		os.Exit(1)
	}
}

func runInfo(session *gocql.Session) {
	var clusterName, protocolVersion, partitioner string
	if err := session.Query("SELECT cluster_name, native_protocol_version, partitioner FROM system.local").
		Scan(&clusterName, &protocolVersion, &partitioner); err != nil {
		fmt.Fprintf(os.Stderr, "snapdb: reading cluster info: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Working on Cassandra Cluster Named %q.\n", clusterName)
	fmt.Printf("Working on Cassandra Protocol Version %q.\n", protocolVersion)
	fmt.Printf("Using Cassandra Partitioner %q.\n", partitioner)
}

func listRows(session *gocql.Session, keyspace, table string, count int) error {
	iter := session.Query(fmt.Sprintf("SELECT key FROM %s.%s", keyspace, table)).Iter()
	var key string
	n := 0
	for n < count && iter.Scan(&key) {
		fmt.Println(key)
		n++
	}
	return iter.Close()
}

func listCells(session *gocql.Session, keyspace, table, row string) error {
	iter := session.Query(fmt.Sprintf("SELECT column1 FROM %s.%s WHERE key = ?", keyspace, table), row).Iter()
	var cell string
	for iter.Scan(&cell) {
		fmt.Println(cell)
	}
	return iter.Close()
}

func readCell(session *gocql.Session, keyspace, table, row, cell string) error {
	var v []byte
	err := session.Query(fmt.Sprintf("SELECT value FROM %s.%s WHERE key = ? AND column1 = ?", keyspace, table), row, cell).
		Scan(&v)
	if err == gocql.ErrNotFound {
		return fmt.Errorf("no such cell: table=%s row=%s cell=%s", table, row, cell)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", v)
	return nil
}

func writeCell(session *gocql.Session, keyspace, table, row, cell, value string) error {
	return session.Query(fmt.Sprintf("INSERT INTO %s.%s (key, column1, value) VALUES (?, ?, ?)", keyspace, table),
		row, cell, []byte(value)).Exec()
}

func dropRow(session *gocql.Session, keyspace, table, row string) error {
	return session.Query(fmt.Sprintf("DELETE FROM %s.%s WHERE key = ?", keyspace, table), row).Exec()
}

func dropCell(session *gocql.Session, keyspace, table, row, cell string) error {
	return session.Query(fmt.Sprintf("DELETE FROM %s.%s WHERE key = ? AND column1 = ?", keyspace, table), row, cell).Exec()
}

func confirmDrop(table, row, cell string) bool {
	what := fmt.Sprintf("row %q in table %q", row, table)
	if cell != "" {
		what = fmt.Sprintf("cell %q of %s", cell, what)
	}
	fmt.Fprintf(os.Stderr, "About to drop %s. Continue? [y/N] ", what)

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return answer == "y\n" || answer == "Y\n" || answer == "yes\n"
}
