package store

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// Bolt is a bbolt-backed store. Each namespace maps to one bucket, so a
// write touches exactly one key inside one transaction.
type Bolt struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path, creating parent directories
// as needed. Fails when the file cannot be opened, which callers must treat
// as fatal for anything that needs durable state.
func Open(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}

	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store %s", path)
	}

	return &Bolt{db: db}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Namespace returns a KV view over the named bucket.
func (b *Bolt) Namespace(name string) KV {
	return &namespace{db: b.db, bucket: []byte(name)}
}

type namespace struct {
	db     *bbolt.DB
	bucket []byte
}

func (n *namespace) GetString(key string) (string, error) {
	var value string
	err := n.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(n.bucket)
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", key)
	}
	return value, nil
}

func (n *namespace) PutString(key, value string) error {
	err := n.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(n.bucket)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), []byte(value))
	})
	return errors.Wrapf(err, "failed to write %s", key)
}

func (n *namespace) GetInt(key string) (int, error) {
	s, err := n.GetString(key)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt integer value for %s", key)
	}
	return v, nil
}

func (n *namespace) PutInt(key string, value int) error {
	return n.PutString(key, strconv.Itoa(value))
}
