// Package boltstore persists the transaction ledger, the product catalog and
// the stock movement log in a single BoltDB file. Every write runs inside one
// db.Update transaction, which is what gives Settle its all-or-nothing
// guarantee: the status flip, the product stock decrement and the movement
// append either all commit or all roll back.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
)

var (
	bucketTransactions = []byte("transactions")
	bucketReferences   = []byte("references")
	bucketProducts     = []byte("products")
	bucketMovements    = []byte("movements")
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTransactions, bucketReferences, bucketProducts, bucketMovements} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(ctx context.Context, t *transaction.Transaction) error {
	_ = ctx
	if t == nil || t.ID == "" || t.Reference == "" {
		return fmt.Errorf("boltstore: id and reference are required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		refs := tx.Bucket(bucketReferences)
		if refs.Get([]byte(t.Reference)) != nil {
			return transaction.ErrConflict
		}
		txns := tx.Bucket(bucketTransactions)
		if txns.Get([]byte(t.ID)) != nil {
			return transaction.ErrConflict
		}

		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err := txns.Put([]byte(t.ID), data); err != nil {
			return err
		}
		return refs.Put([]byte(t.Reference), []byte(t.ID))
	})
}

func (s *Store) FindByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	_ = ctx
	var t transaction.Transaction

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTransactions).Get([]byte(id))
		if v == nil {
			return transaction.ErrNotFound
		}
		return json.Unmarshal(v, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	_ = ctx
	var t transaction.Transaction

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketReferences).Get([]byte(reference))
		if id == nil {
			return transaction.ErrNotFound
		}
		v := tx.Bucket(bucketTransactions).Get(id)
		if v == nil {
			return transaction.ErrNotFound
		}
		return json.Unmarshal(v, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time) ([]*transaction.Transaction, error) {
	_ = ctx
	var stale []*transaction.Transaction

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(_, v []byte) error {
			var t transaction.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.Status == transaction.StatusPending && t.UpdatedAt.Before(before) {
				stale = append(stale, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func (s *Store) RecordExternalID(ctx context.Context, reference, externalID string) error {
	_ = ctx
	if externalID == "" {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketReferences).Get([]byte(reference))
		if id == nil {
			return transaction.ErrNotFound
		}
		txns := tx.Bucket(bucketTransactions)
		v := txns.Get(id)
		if v == nil {
			return transaction.ErrNotFound
		}

		var t transaction.Transaction
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return transaction.ErrTerminalState
		}
		t.ExternalTransactionID = externalID
		t.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		return txns.Put(id, data)
	})
}

func (s *Store) Settle(ctx context.Context, reference string, verdict transaction.Status, externalID string) (*transaction.SettleResult, error) {
	_ = ctx
	if !verdict.Terminal() {
		return nil, transaction.ErrInvalidVerdict
	}

	var result transaction.SettleResult

	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketReferences).Get([]byte(reference))
		if id == nil {
			return transaction.ErrNotFound
		}
		txns := tx.Bucket(bucketTransactions)
		v := txns.Get(id)
		if v == nil {
			return transaction.ErrNotFound
		}

		var t transaction.Transaction
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}

		if t.Status == verdict {
			result = transaction.SettleResult{Transaction: &t, Changed: false}
			return nil
		}
		if t.Status.Terminal() {
			return transaction.ErrTerminalState
		}

		var movement *stock.Movement
		if verdict == transaction.StatusApproved {
			products := tx.Bucket(bucketProducts)
			pv := products.Get([]byte(t.ProductID))
			if pv == nil {
				return product.ErrNotFound
			}
			var p product.Product
			if err := json.Unmarshal(pv, &p); err != nil {
				return err
			}
			if p.Stock < t.Quantity {
				return stock.ErrInsufficientStock
			}

			previous := p.Stock
			p.Stock -= t.Quantity
			pd, err := json.Marshal(&p)
			if err != nil {
				return err
			}
			if err := products.Put([]byte(p.ID), pd); err != nil {
				return err
			}

			movement = &stock.Movement{
				ID:            uuid.NewString(),
				ProductID:     t.ProductID,
				TransactionID: t.ID,
				Quantity:      -t.Quantity,
				Type:          stock.MovementSale,
				PreviousStock: previous,
				NewStock:      p.Stock,
				Reference:     t.Reference,
				CreatedAt:     time.Now().UTC(),
			}
			if err := appendMovement(tx, movement); err != nil {
				return err
			}
		}

		t.Status = verdict
		if externalID != "" {
			t.ExternalTransactionID = externalID
		}
		t.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		if err := txns.Put(id, data); err != nil {
			return err
		}

		result = transaction.SettleResult{Transaction: &t, Changed: true, Movement: movement}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) FindProduct(ctx context.Context, id string) (*product.Product, error) {
	_ = ctx
	var p product.Product

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProducts).Get([]byte(id))
		if v == nil {
			return product.ErrNotFound
		}
		return json.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProduct(ctx context.Context, p *product.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("boltstore: product id is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProducts).Put([]byte(p.ID), data)
	})
}

func (s *Store) ListProducts(ctx context.Context) ([]*product.Product, error) {
	_ = ctx
	out := []*product.Product{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(_, v []byte) error {
			var p product.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ApplyMovement(ctx context.Context, m stock.Movement) (*stock.Movement, error) {
	_ = ctx
	if !m.Type.Valid() || m.Type == stock.MovementSale {
		return nil, stock.ErrInvalidType
	}
	if m.Quantity == 0 {
		return nil, stock.ErrInvalidQuantity
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		pv := products.Get([]byte(m.ProductID))
		if pv == nil {
			return product.ErrNotFound
		}
		var p product.Product
		if err := json.Unmarshal(pv, &p); err != nil {
			return err
		}
		if p.Stock+m.Quantity < 0 {
			return stock.ErrInsufficientStock
		}

		m.ID = uuid.NewString()
		m.PreviousStock = p.Stock
		p.Stock += m.Quantity
		m.NewStock = p.Stock
		m.CreatedAt = time.Now().UTC()

		pd, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		if err := products.Put([]byte(p.ID), pd); err != nil {
			return err
		}
		return appendMovement(tx, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string) ([]*stock.Movement, error) {
	_ = ctx
	var out []*stock.Movement

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMovements).ForEach(func(_, v []byte) error {
			var m stock.Movement
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if productID != "" && m.ProductID != productID {
				return nil
			}
			out = append(out, &m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendMovement stores a movement under a monotonically increasing key so
// that iteration order matches append order.
func appendMovement(tx *bolt.Tx, m *stock.Movement) error {
	movements := tx.Bucket(bucketMovements)
	seq, err := movements.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var key bytes.Buffer
	if err := binary.Write(&key, binary.BigEndian, seq); err != nil {
		return err
	}
	return movements.Put(key.Bytes(), data)
}
