package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout inside the leveldb database:
//
//	d!<namespace>!<key>  -> 8-byte big-endian seq + entry bytes
//	o!<namespace>!<seq>  -> key (seq is 16 hex digits, so iteration order
//	                        equals insertion order)
//	m!<namespace>        -> 8-byte big-endian last assigned seq
//
// Namespace names must not contain '!'.
type LevelDBProvider struct {
	db         *leveldb.DB
	writeMutex *sync.Mutex
}

// NewLevelDBProvider opens (or creates) a leveldb database in the given
// directory.
func NewLevelDBProvider(dir string) (*LevelDBProvider, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (p *LevelDBProvider) Open(namespace string) (Store, error) {
	return &levelDBStore{provider: p, namespace: namespace}, nil
}

func (p *LevelDBProvider) Namespaces() ([]string, error) {
	names := make([]string, 0)
	iter := p.db.NewIterator(util.BytesPrefix([]byte("m!")), nil)
	defer iter.Release()
	for iter.Next() {
		names = append(names, string(iter.Key()[2:]))
	}
	return names, iter.Error()
}

func (p *LevelDBProvider) DeleteNamespace(namespace string) error {
	p.writeMutex.Lock()
	defer p.writeMutex.Unlock()
	batch := new(leveldb.Batch)
	for _, prefix := range []string{"d!" + namespace + "!", "o!" + namespace + "!"} {
		iter := p.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return err
		}
	}
	batch.Delete([]byte("m!" + namespace))
	return p.db.Write(batch, nil)
}

func (p *LevelDBProvider) Close() error {
	return p.db.Close()
}

type levelDBStore struct {
	provider  *LevelDBProvider
	namespace string
}

func (s *levelDBStore) dataKey(key string) []byte {
	return []byte("d!" + s.namespace + "!" + key)
}

func (s *levelDBStore) orderKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("o!%s!%016x", s.namespace, seq))
}

func (s *levelDBStore) Get(key string) ([]byte, bool, error) {
	val, err := s.provider.db.Get(s.dataKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val[8:], true, nil
}

func (s *levelDBStore) Put(key string, bytes []byte) error {
	s.provider.writeMutex.Lock()
	defer s.provider.writeMutex.Unlock()

	// keep the original seq on overwrite so insertion order is stable
	var seq uint64
	if prev, err := s.provider.db.Get(s.dataKey(key), nil); err == nil {
		seq = binary.BigEndian.Uint64(prev[:8])
	} else if err != leveldb.ErrNotFound {
		return err
	} else {
		seq, err = s.nextSeq()
		if err != nil {
			return err
		}
	}

	val := make([]byte, 8+len(bytes))
	binary.BigEndian.PutUint64(val, seq)
	copy(val[8:], bytes)

	batch := new(leveldb.Batch)
	batch.Put(s.dataKey(key), val)
	batch.Put(s.orderKey(seq), []byte(key))
	return s.provider.db.Write(batch, nil)
}

func (s *levelDBStore) nextSeq() (uint64, error) {
	metaKey := []byte("m!" + s.namespace)
	var seq uint64
	if raw, err := s.provider.db.Get(metaKey, nil); err == nil {
		seq = binary.BigEndian.Uint64(raw)
	} else if err != leveldb.ErrNotFound {
		return 0, err
	}
	seq++
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, seq)
	return seq, s.provider.db.Put(metaKey, raw, nil)
}

func (s *levelDBStore) Delete(key string) error {
	s.provider.writeMutex.Lock()
	defer s.provider.writeMutex.Unlock()
	val, err := s.provider.db.Get(s.dataKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	seq := binary.BigEndian.Uint64(val[:8])
	batch := new(leveldb.Batch)
	batch.Delete(s.dataKey(key))
	batch.Delete(s.orderKey(seq))
	return s.provider.db.Write(batch, nil)
}

func (s *levelDBStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	iter := s.provider.db.NewIterator(util.BytesPrefix([]byte("o!"+s.namespace+"!")), nil)
	defer iter.Release()
	for iter.Next() {
		keys = append(keys, string(iter.Value()))
	}
	return keys, iter.Error()
}

func (s *levelDBStore) Len() (int, error) {
	count := 0
	iter := s.provider.db.NewIterator(util.BytesPrefix([]byte("d!"+s.namespace+"!")), nil)
	defer iter.Release()
	for iter.Next() {
		count++
	}
	return count, iter.Error()
}
