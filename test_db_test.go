package pgjob_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type db struct {
	t           *testing.T
	defaultPool *pgxpool.Pool
	schema      string
	*pgxpool.Pool
}

func Open(dsn string, t *testing.T) (*db, error) {
	ctx := context.Background()
	schema := strings.ToLower(t.Name())
	defaultPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "open")
	}
	err = defaultPool.Ping(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "ping")
	}

	_, err = defaultPool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	if err != nil {
		return nil, errors.WithMessage(err, "create schema")
	}

	uri, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "parse dsn")
	}
	query, err := url.ParseQuery(uri.RawQuery)
	if err != nil {
		return nil, errors.WithMessage(err, "parse query")
	}
	query.Set("search_path", schema)
	uri.RawQuery = query.Encode()

	tempPool, err := pgxpool.New(ctx, uri.String())
	if err != nil {
		return nil, errors.WithMessage(err, "open")
	}
	err = tempPool.Ping(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "ping")
	}

	db := &db{
		t:           t,
		defaultPool: defaultPool,
		Pool:        tempPool,
		schema:      schema,
	}

	return db, nil
}

func (db *db) Close() error {
	_, err := db.defaultPool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", db.schema))
	if err != nil {
		return errors.WithMessage(err, "drop schema")
	}

	db.Pool.Close()
	db.defaultPool.Close()

	return nil
}

func testDsn() string {
	host := "localhost"
	envHost := os.Getenv("POSTGRES_HOST")
	if envHost != "" {
		host = envHost
	}
	return fmt.Sprintf("postgres://test:test@%s:5432/test", host)
}
