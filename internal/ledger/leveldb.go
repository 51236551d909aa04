package ledger

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStateDB persists world state in a LevelDB directory. LevelDB iterates
// in ascending key order, which is exactly the ordering contract Iterate
// requires, so query evaluation stays node-independent.
type LevelStateDB struct {
	db *leveldb.DB
}

// OpenLevelStateDB opens (or creates) the LevelDB directory at path.
func OpenLevelStateDB(path string) (*LevelStateDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelStateDB{db: db}, nil
}

func (s *LevelStateDB) Get(key string) ([]byte, error) {
	val, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *LevelStateDB) Apply(writes []Write) error {
	batch := new(leveldb.Batch)
	for _, w := range writes {
		if w.Delete {
			batch.Delete([]byte(w.Key))
		} else {
			batch.Put([]byte(w.Key), w.Value)
		}
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStateDB) Iterate(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		key := string(iter.Key())
		val := cloneBytes(iter.Value())
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *LevelStateDB) Close() error {
	return s.db.Close()
}
