package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"animica.dev/core/consensus"
	"animica.dev/core/node"
)

// PersistAdmission records one admitted block: header bytes, index
// record, and receipts, then (when the block is the new head) the
// nullifier set and manifest. The manifest write is last; it is the
// commit point.
func (d *DB) PersistAdmission(
	chainID uint32,
	entry *node.IndexEntry,
	receipts []consensus.ProofReceipt,
	head bool,
	nullifiers map[consensus.Hash]uint64,
) error {
	headerBytes, err := entry.Header.Encode()
	if err != nil {
		return err
	}
	if err := d.PutHeader(entry.Hash, headerBytes); err != nil {
		return err
	}
	if err := d.PutIndex(entry.Hash, indexRecordOf(entry)); err != nil {
		return err
	}
	if err := d.PutReceipts(entry.Hash, receipts); err != nil {
		return err
	}
	if !head {
		return nil
	}
	if err := d.ReplaceNullifiers(nullifiers); err != nil {
		return err
	}
	return d.SetManifest(&Manifest{
		SchemaVersion:     SchemaVersionV1,
		ChainID:           chainID,
		TipHashHex:        hex32(entry.Hash),
		TipHeight:         entry.Header.Number,
		TipCumulativeWork: entry.CumulativeWork,
	})
}

func indexRecordOf(e *node.IndexEntry) IndexRecord {
	return IndexRecord{
		Height:         e.Header.Number,
		ParentHash:     e.Header.ParentHash,
		CumulativeWork: e.CumulativeWork,
		EffectiveWork:  e.EffectiveWork,
		Controller: controllerRecord{
			Theta:       e.Controller.ThetaMicro,
			M:           e.Controller.MMicro,
			WindowSum:   e.Controller.WindowSumSec,
			WindowCount: e.Controller.WindowCount,
		},
		Nullifiers: e.Nullifiers,
		Status:     uint8(e.Status),
	}
}

// LoadEntries reads every persisted header and index record back into
// node index entries, keyed by hash.
func (d *DB) LoadEntries() (map[consensus.Hash]*node.IndexEntry, error) {
	out := make(map[consensus.Hash]*node.IndexEntry)
	hashes, err := d.allIndexHashes()
	if err != nil {
		return nil, err
	}
	for _, hash := range hashes {
		rec, ok, err := d.GetIndex(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("index record vanished for %s", hex32(hash))
		}
		header, ok, err := d.GetHeader(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("header missing for %s", hex32(hash))
		}
		out[hash] = &node.IndexEntry{
			Header:         header,
			Hash:           hash,
			CumulativeWork: rec.CumulativeWork,
			EffectiveWork:  rec.EffectiveWork,
			Controller: consensus.ControllerState{
				ThetaMicro:   rec.Controller.Theta,
				MMicro:       rec.Controller.M,
				WindowSumSec: rec.Controller.WindowSum,
				WindowCount:  rec.Controller.WindowCount,
			},
			Nullifiers: rec.Nullifiers,
			Status:     node.BlockStatus(rec.Status),
		}
	}
	return out, nil
}

func (d *DB) allIndexHashes() ([]consensus.Hash, error) {
	var out []consensus.Hash
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).ForEach(func(k, _ []byte) error {
			if len(k) != 32 {
				return fmt.Errorf("index key corrupt")
			}
			var h consensus.Hash
			copy(h[:], k)
			out = append(out, h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
