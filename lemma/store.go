package lemma

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Store mirrors accepted lemmas into an embedded key-value store, keyed by
// a session id, so a restarted engine can warm-start from the previous
// session's lemmas without re-parsing the whole .ksummary text file.
type Store struct {
	db      *badger.DB
	session uuid.UUID
}

// OpenStore opens (or creates) a badger database at dir under a fresh
// session id.
func OpenStore(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("lemma: open store: %w", err)
	}
	return &Store{db: db, session: uuid.New()}, nil
}

// Session returns the store's session id.
func (s *Store) Session() uuid.UUID { return s.session }

func lemmaKey(session uuid.UUID, path string) []byte {
	return []byte(fmt.Sprintf("%s/%s", session, path))
}

// Add records a single lemma under the current session.
func (s *Store) Add(l Lemma) error {
	var buf bytes.Buffer
	if err := Print(&buf, []Lemma{l}); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lemmaKey(s.session, l.Path), buf.Bytes())
	})
}

// LoadSession returns every lemma recorded under session, in no particular
// order, for a warm restart.
func (s *Store) LoadSession(session uuid.UUID) ([]Lemma, error) {
	var lemmas []Lemma
	prefix := []byte(session.String() + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				parsed, err := Parse(bytes.NewReader(val))
				if err != nil {
					return err
				}
				lemmas = append(lemmas, parsed...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lemma: load session %s: %w", session, err)
	}
	return lemmas, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }
