package linkpreview

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("descriptions")

// BoltCache is a Cache backed by a local bbolt database file. Each value is
// stored with its expiration time; expired values are reported as misses and
// removed by Cleanup.
//
// A bbolt file can only be opened by a single process at a time, so
// BoltCache suits command line tools and single instance deployments.
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
}

// OpenBoltCache opens or creates bbolt database at path. Values expire after
// ttl; zero ttl means values never expire.
func OpenBoltCache(path string, ttl time.Duration) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt cache: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt cache: %w", err)
	}
	return &BoltCache{db: db, ttl: ttl}, nil
}

// Close closes underlying database
func (c *BoltCache) Close() error { return c.db.Close() }

func (c *BoltCache) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return ErrCacheMiss
		}
		data, expired, err := decodeBoltValue(v, time.Now())
		if err != nil {
			return err
		}
		if expired {
			return ErrCacheMiss
		}
		// values are only valid for the life of the transaction
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (c *BoltCache) Set(_ context.Context, key string, value []byte) error {
	var expires int64
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl).UnixNano()
	}
	buf := make([]byte, 8, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expires))
	buf = append(buf, value...)
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), buf)
	})
}

// Cleanup removes expired values, returning number of values removed.
func (c *BoltCache) Cleanup() (int, error) {
	now := time.Now()
	var stale [][]byte
	err := c.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		if err := bkt.ForEach(func(k, v []byte) error {
			if _, expired, err := decodeBoltValue(v, now); err != nil || expired {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

var errBoltValue = errors.New("bolt cache: malformed value")

// decodeBoltValue splits stored value into data and reports whether it is
// expired at now. First 8 bytes of value hold big-endian expiration time in
// unix nanoseconds, zero means no expiration.
func decodeBoltValue(v []byte, now time.Time) (data []byte, expired bool, err error) {
	if len(v) < 8 {
		return nil, false, errBoltValue
	}
	expires := int64(binary.BigEndian.Uint64(v[:8]))
	if expires != 0 && now.UnixNano() > expires {
		return nil, true, nil
	}
	return v[8:], false, nil
}
