// Package store persists admitted chain state: headers, index
// entries, proof receipts, and the live nullifier set, with an atomic
// manifest as the commit point. The storage engine is not part of
// consensus; the store's only contract is to round-trip exactly what
// admission produced.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"animica.dev/core/codec"
	"animica.dev/core/consensus"
)

var (
	bucketHeaders    = []byte("headers_by_hash")
	bucketIndex      = []byte("index_by_hash")
	bucketReceipts   = []byte("receipts_by_hash")
	bucketNullifiers = []byte("nullifier_expiry")
)

// IndexRecord is the persisted form of a node index entry.
type IndexRecord struct {
	Height         uint64             `cbor:"height"`
	ParentHash     consensus.Hash     `cbor:"parent"`
	CumulativeWork uint64             `cbor:"cumWork"`
	EffectiveWork  uint64             `cbor:"work"`
	Controller     controllerRecord   `cbor:"controller"`
	Nullifiers     []consensus.Hash   `cbor:"nullifiers"`
	Status         uint8              `cbor:"status"`
}

type controllerRecord struct {
	Theta       uint64 `cbor:"theta"`
	M           int64  `cbor:"m"`
	WindowSum   uint64 `cbor:"windowSum"`
	WindowCount uint32 `cbor:"windowCount"`
}

// DB wraps the bbolt handle and the chain directory.
type DB struct {
	chainDir string
	db       *bolt.DB
	manifest *Manifest
}

// Open opens (or creates) the store for one chain id.
func Open(datadir string, chainID uint32) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	chainDir := ChainDir(datadir, chainID)
	if err := ensureDir(chainDir); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Join(chainDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(chainDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{chainDir: chainDir, db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHeaders, bucketIndex, bucketReceipts, bucketNullifiers} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(chainDir)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil // uninitialized chain; caller persists genesis first.
		}
		_ = bdb.Close()
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	d.manifest = m
	return d, nil
}

// Close releases the bbolt handle.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ChainDir returns the per-chain directory under datadir.
func ChainDir(datadir string, chainID uint32) string {
	return filepath.Join(datadir, fmt.Sprintf("chain-%d", chainID))
}

// Manifest returns the loaded manifest, or nil for a fresh store.
func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

// SetManifest atomically persists m as the new commit point.
func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if err := writeManifestAtomic(d.chainDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// PutHeader stores a header's canonical bytes.
func (d *DB) PutHeader(hash consensus.Hash, headerBytes []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeaders).Put(hash[:], headerBytes)
	})
}

// GetHeader loads a header by hash.
func (d *DB) GetHeader(hash consensus.Hash) (*consensus.Header, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeaders).Get(hash[:])
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	h, err := consensus.DecodeHeader(raw)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

// PutIndex stores an index record.
func (d *DB) PutIndex(hash consensus.Hash, rec IndexRecord) error {
	b, err := codec.Encode(&rec)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Put(hash[:], b)
	})
}

// GetIndex loads an index record.
func (d *DB) GetIndex(hash consensus.Hash) (*IndexRecord, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get(hash[:])
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var rec IndexRecord
	if err := codec.Decode(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// PutReceipts stores a block's proof receipts as one canonical array.
func (d *DB) PutReceipts(hash consensus.Hash, receipts []consensus.ProofReceipt) error {
	b, err := codec.Encode(receipts)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceipts).Put(hash[:], b)
	})
}

// GetReceipts loads a block's proof receipts.
func (d *DB) GetReceipts(hash consensus.Hash) ([]consensus.ProofReceipt, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(hash[:])
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var receipts []consensus.ProofReceipt
	if err := codec.Decode(raw, &receipts); err != nil {
		return nil, false, err
	}
	return receipts, true, nil
}

// ReplaceNullifiers rewrites the persisted nullifier set in one batch.
// Head switches replace the set wholesale so the store can never hold
// a half-applied reorg.
func (d *DB) ReplaceNullifiers(set map[consensus.Hash]uint64) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketNullifiers); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketNullifiers)
		if err != nil {
			return err
		}
		var exp [8]byte
		for n, e := range set {
			binary.BigEndian.PutUint64(exp[:], e)
			if err := b.Put(n[:], exp[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadNullifiers reads the persisted nullifier set.
func (d *DB) LoadNullifiers() (map[consensus.Hash]uint64, error) {
	out := make(map[consensus.Hash]uint64)
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNullifiers).ForEach(func(k, v []byte) error {
			if len(k) != 32 || len(v) != 8 {
				return fmt.Errorf("nullifier record corrupt")
			}
			var n consensus.Hash
			copy(n[:], k)
			out[n] = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hex32(h consensus.Hash) string {
	return hex.EncodeToString(h[:])
}
