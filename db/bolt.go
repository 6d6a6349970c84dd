package db

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/boltdb/bolt"
)

// Embedded key-value storage engine. Each collection is a bucket keyed by an
// insertion sequence number.
type boltBackend struct {
	db *bolt.DB
}

// OpenBolt opens or creates a BoltDB store at path
func OpenBolt(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range [...]string{common.Posts, common.Messages} {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return newStore(&boltBackend{db}), nil
}

func formatSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func (b *boltBackend) insert(_ context.Context, collection string,
	doc Document,
) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return b.db.Batch(func(tx *bolt.Tx) error {
		buc := tx.Bucket([]byte(collection))
		seq, err := buc.NextSequence()
		if err != nil {
			return err
		}
		return buc.Put(formatSeq(seq), buf)
	})
}

func (b *boltBackend) query(ctx context.Context, q Query) (
	docs []Document, err error,
) {
	err = b.db.View(func(tx *bolt.Tx) error {
		buc := tx.Bucket([]byte(q.Collection))
		docs = make([]Document, 0, buc.Stats().KeyN)
		return buc.ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var d Document
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if matchesBoard(q, d) {
				docs = append(docs, d)
			}
			return nil
		})
	})
	if err != nil {
		return
	}
	sortDocs(docs, q.Descending)
	return
}

func (b *boltBackend) close() error {
	return b.db.Close()
}
