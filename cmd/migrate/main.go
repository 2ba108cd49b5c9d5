package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const createVersionsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if _, err := db.ExecContext(ctx, createVersionsTable); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		log.Fatal(err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatal(err)
	}

	if listOnly {
		for _, f := range files {
			state := "pending"
			if applied[f] {
				state = "applied"
			}
			fmt.Printf("  %-40s %s\n", f, state)
		}
		fmt.Printf("Total: %d migrations, %d applied\n", len(files), len(applied))
		return
	}

	var okCount, skipCount int
	for _, f := range files {
		if applied[f] {
			skipCount++
			continue
		}
		fmt.Printf("  %s ... ", f)
		if err := apply(ctx, db, dir, f); err != nil {
			fmt.Println("ERROR")
			log.Fatalf("%s: %v", f, err)
		}
		fmt.Println("OK")
		okCount++
	}
	log.Printf("Done: %d applied, %d already up to date", okCount, skipCount)
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one file and records its version in the same transaction, so
// a failed migration leaves no trace.
func apply(ctx context.Context, db *sql.DB, dir, name string) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if strings.TrimSpace(string(data)) != "" {
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
