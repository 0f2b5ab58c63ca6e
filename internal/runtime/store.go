// store.go - leveldb persistence for accounts and processed transactions.

package runtime

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	accountPrefix   = []byte("acct_")
	processedPrefix = []byte("tx_")
)

// Store holds committed accounts. All writes go through ApplyBatch so a
// transaction's effects land together or not at all.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens or creates a store at path. An empty path keeps everything in
// memory.
func OpenStore(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open account store")
	}
	return &Store{db: db}, nil
}

// Get loads an account. Missing addresses yield an empty system-owned account
// and found=false.
func (s *Store) Get(key Pubkey) (acct *Account, found bool, err error) {
	raw, err := s.db.Get(accountKey(key), nil)
	if err == leveldb.ErrNotFound {
		return &Account{Owner: SystemProgramID}, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "load account %s", key)
	}
	acct = new(Account)
	if err := acct.UnmarshalBinary(raw); err != nil {
		return nil, false, errors.Wrapf(err, "decode account %s", key)
	}
	return acct, true, nil
}

// Processed reports whether the transaction with this id was already committed.
func (s *Store) Processed(id []byte) (bool, error) {
	ok, err := s.db.Has(processedKey(id), nil)
	if err != nil {
		return false, errors.Wrap(err, "lookup transaction id")
	}
	return ok, nil
}

// ApplyBatch writes the given accounts and marks id as processed in one
// synchronous leveldb batch. Empty accounts are deleted.
func (s *Store) ApplyBatch(accounts map[Pubkey]*Account, id []byte) error {
	batch := new(leveldb.Batch)
	for key, acct := range accounts {
		if acct.IsEmpty() {
			batch.Delete(accountKey(key))
			continue
		}
		raw, err := acct.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "encode account %s", key)
		}
		batch.Put(accountKey(key), raw)
	}
	if len(id) > 0 {
		batch.Put(processedKey(id), []byte{1})
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	return nil
}

// Accounts lists every stored address.
func (s *Store) Accounts() ([]Pubkey, error) {
	iter := s.db.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer iter.Release()

	var out []Pubkey
	for iter.Next() {
		var key Pubkey
		copy(key[:], iter.Key()[len(accountPrefix):])
		out = append(out, key)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate accounts")
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func accountKey(key Pubkey) []byte {
	return append(append([]byte(nil), accountPrefix...), key[:]...)
}

func processedKey(id []byte) []byte {
	return append(append([]byte(nil), processedPrefix...), id...)
}
