package state

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Database persists a MemoryKV image to disk so the daemon can recover its
// ledger after a restart. The live store remains the in-memory copy; the
// database is only read at boot and rewritten on flush.
type Database struct {
	db *leveldb.DB
}

// OpenDatabase opens (or creates) the LevelDB directory at path.
func OpenDatabase(path string) (*Database, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}
	return &Database{db: db}, nil
}

// Close releases the underlying database handle.
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Load copies every persisted pair into the supplied memory store.
func (d *Database) Load(kv *MemoryKV) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("state: database not open")
	}
	if kv == nil {
		return fmt.Errorf("state: nil target store")
	}
	iter := d.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()
	for iter.Next() {
		kv.Put(iter.Key(), iter.Value())
	}
	kv.DiscardJournal()
	return iter.Error()
}

// Flush atomically replaces the persisted image with the current contents of
// the memory store.
func (d *Database) Flush(kv *MemoryKV) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("state: database not open")
	}
	if kv == nil {
		return fmt.Errorf("state: nil source store")
	}
	batch := new(leveldb.Batch)
	iter := d.db.NewIterator(&util.Range{}, nil)
	for iter.Next() {
		if _, ok := kv.Get(iter.Key()); !ok {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	kv.Each(func(key, value []byte) bool {
		batch.Put(key, value)
		return true
	})
	return d.db.Write(batch, nil)
}
