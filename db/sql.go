package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/blindspot/blindspot/common"
	"github.com/go-playground/log"
	"github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Postgres notification channel for document changes
const notifyChannel = "blindspot_documents"

// SQL storage engine for Postgres and SQLite. Documents are stored as JSON
// alongside the columns needed for filtering and ordering.
type sqlBackend struct {
	db       *sql.DB
	driver   string
	sq       squirrel.StatementBuilderType
	listener *pq.Listener
}

var migrations = map[string][]string{
	"postgres": {
		`create table if not exists documents (
			seq bigserial primary key,
			id uuid not null unique,
			collection varchar(20) not null,
			board text not null,
			created bigint not null,
			data text not null
		)`,
		`create index if not exists documents_collection_board
			on documents (collection, board, created)`,
	},
	"sqlite": {
		`create table if not exists documents (
			seq integer primary key autoincrement,
			id text not null unique,
			collection text not null,
			board text not null,
			created integer not null,
			data text not null
		)`,
		`create index if not exists documents_collection_board
			on documents (collection, board, created)`,
	},
}

// OpenSQL opens a Postgres or SQLite store. driver is one of "postgres" or
// "sqlite". For Postgres, changes by other processes sharing the database are
// propagated with LISTEN/NOTIFY.
func OpenSQL(driver, url string) (Store, error) {
	schema, ok := migrations[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL driver: %s", driver)
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	b := &sqlBackend{
		db:     db,
		driver: driver,
		sq:     squirrel.StatementBuilder,
	}
	if driver == "postgres" {
		b.sq = b.sq.PlaceholderFormat(squirrel.Dollar)
	} else {
		// SQLite does not support concurrent writers
		db.SetMaxOpenConns(1)
	}

	err = b.migrate(schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := newStore(b)
	if driver == "postgres" {
		err = b.listen(url, &s.hub)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (b *sqlBackend) migrate(schema []string) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	for _, q := range schema {
		if _, err := tx.Exec(q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Forward change notifications of other processes to local subscriptions
func (b *sqlBackend) listen(url string, h *hub) error {
	b.listener = pq.NewListener(
		url,
		time.Second,
		time.Second*10,
		func(_ pq.ListenerEventType, err error) {
			if err != nil {
				log.Errorf("postgres listener: %s", err)
			}
		},
	)
	err := b.listener.Listen(notifyChannel)
	if err != nil {
		b.listener.Close()
		return err
	}

	go func() {
		for msg := range b.listener.Notify {
			// nil is sent after reconnecting. Notifications may have been
			// missed.
			if msg == nil {
				h.notifyAll()
				continue
			}
			h.notify(splitNotification(msg.Extra))
		}
	}()
	return nil
}

// Split a "collection:board" notification payload
func splitNotification(payload string) (collection, board string) {
	i := strings.IndexByte(payload, ':')
	if i == -1 {
		return payload, ""
	}
	return payload[:i], payload[i+1:]
}

func (b *sqlBackend) insert(ctx context.Context, collection string,
	doc Document,
) (err error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	board, _ := doc["board"].(string)

	q, args, err := b.sq.Insert("documents").
		Columns("id", "collection", "board", "created", "data").
		Values(doc["id"], collection, board, docTime(doc).UnixNano(),
			string(data)).
		ToSql()
	if err != nil {
		return
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer rollbackOnError(tx, &err)

	_, err = tx.ExecContext(ctx, q, args...)
	if err != nil {
		return
	}
	if b.driver == "postgres" {
		_, err = tx.ExecContext(ctx, `select pg_notify($1, $2)`,
			notifyChannel, collection+":"+board)
		if err != nil {
			return
		}
	}
	return tx.Commit()
}

func (b *sqlBackend) query(ctx context.Context, q Query) (
	docs []Document, err error,
) {
	order := "created asc, seq asc"
	if q.Descending {
		order = "created desc, seq desc"
	}
	sel := b.sq.Select("data").
		From("documents").
		Where(squirrel.Eq{"collection": q.Collection}).
		OrderBy(order)
	if q.Board != "" && q.Collection == common.Posts {
		sel = sel.Where(squirrel.Eq{"board": q.Board})
	}
	sqlStr, args, err := sel.ToSql()
	if err != nil {
		return
	}

	r, err := b.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return
	}
	defer r.Close()

	docs = make([]Document, 0, 64)
	for r.Next() {
		var data string
		err = r.Scan(&data)
		if err != nil {
			return
		}
		var d Document
		err = json.Unmarshal([]byte(data), &d)
		if err != nil {
			return
		}
		docs = append(docs, d)
	}
	err = r.Err()
	return
}

func (b *sqlBackend) close() (err error) {
	if b.listener != nil {
		err = b.listener.Close()
	}
	if e := b.db.Close(); e != nil && err == nil {
		err = e
	}
	return
}

func rollbackOnError(tx *sql.Tx, err *error) {
	if *err != nil {
		tx.Rollback()
	}
}
