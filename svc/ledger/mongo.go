package ledger

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DefaultMongoCollection holds one document per account.
const DefaultMongoCollection = "ledger_accounts"

// MongoStore keeps each account and its retained history in one document.
// Writes replace the document filtered on {_id, version}.
type MongoStore struct {
	coll *mongo.Collection
	cfg  storeConfig
}

func NewMongoStore(db *mongo.Database, opts ...StoreOption) *MongoStore {
	return &MongoStore{
		coll: db.Collection(DefaultMongoCollection),
		cfg:  newStoreConfig(opts),
	}
}

type mongoTransaction struct {
	ID            string    `bson:"id"`
	Seq           int64     `bson:"seq"`
	Kind          string    `bson:"kind"`
	Delta         int64     `bson:"delta"`
	BalanceBefore int64     `bson:"balance_before"`
	BalanceAfter  int64     `bson:"balance_after"`
	Metadata      Metadata  `bson:"metadata"`
	CreatedAt     time.Time `bson:"created_at"`
}

type mongoAccount struct {
	ID                     string             `bson:"_id"`
	DisplayName            string             `bson:"display_name"`
	Email                  string             `bson:"email"`
	Tier                   string             `bson:"tier"`
	Balance                int64              `bson:"balance"`
	ExternalSubscriptionID string             `bson:"external_subscription_id"`
	ExternalCustomerID     string             `bson:"external_customer_id"`
	TierEventAt            time.Time          `bson:"tier_event_at"`
	TrimmedDelta           int64              `bson:"trimmed_delta"`
	Transactions           []mongoTransaction `bson:"transactions"`
	Version                int64              `bson:"version"`
	CreatedAt              time.Time          `bson:"created_at"`
	UpdatedAt              time.Time          `bson:"updated_at"`
}

func toMongo(a *Account) mongoAccount {
	doc := mongoAccount{
		ID:                     a.ID,
		DisplayName:            a.DisplayName,
		Email:                  a.Email,
		Tier:                   string(a.Tier),
		Balance:                a.Balance,
		ExternalSubscriptionID: a.ExternalSubscriptionID,
		ExternalCustomerID:     a.ExternalCustomerID,
		TierEventAt:            a.TierEventAt,
		TrimmedDelta:           a.TrimmedDelta,
		Transactions:           make([]mongoTransaction, 0, len(a.Transactions)),
		Version:                a.Version,
		CreatedAt:              a.CreatedAt,
		UpdatedAt:              a.UpdatedAt,
	}
	for _, t := range a.Transactions {
		doc.Transactions = append(doc.Transactions, mongoTransaction{
			ID:            t.ID,
			Seq:           t.Seq,
			Kind:          string(t.Kind),
			Delta:         t.Delta,
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			Metadata:      t.Metadata,
			CreatedAt:     t.CreatedAt,
		})
	}
	return doc
}

func (d mongoAccount) toAccount() *Account {
	a := &Account{
		ID:                     d.ID,
		DisplayName:            d.DisplayName,
		Email:                  d.Email,
		Tier:                   Tier(d.Tier),
		Balance:                d.Balance,
		ExternalSubscriptionID: d.ExternalSubscriptionID,
		ExternalCustomerID:     d.ExternalCustomerID,
		TierEventAt:            d.TierEventAt.UTC(),
		TrimmedDelta:           d.TrimmedDelta,
		Version:                d.Version,
		CreatedAt:              d.CreatedAt.UTC(),
		UpdatedAt:              d.UpdatedAt.UTC(),
	}
	for _, t := range d.Transactions {
		a.Transactions = append(a.Transactions, Transaction{
			ID:            t.ID,
			Seq:           t.Seq,
			Kind:          Kind(t.Kind),
			Delta:         t.Delta,
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			Metadata:      t.Metadata,
			CreatedAt:     t.CreatedAt.UTC(),
		})
	}
	return a
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidAccountID
	}
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *MongoStore) AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error) {
	if id == "" {
		return nil, nil, ErrInvalidAccountID
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	next, tx, err := fn(current.Clone())
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return current, nil, nil
	}

	committed, appended, err := prepare(id, current, next, tx, s.cfg.historyCap, s.cfg.now())
	if err != nil {
		return nil, nil, err
	}

	doc := toMongo(committed)
	if current == nil {
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			return nil, nil, mapMongoErr(err)
		}
		return committed, appended, nil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "version", Value: current.Version}}, doc)
	if err != nil {
		return nil, nil, mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return nil, nil, ErrConflict
	}

	return committed, appended, nil
}

func (s *MongoStore) load(ctx context.Context, id string) (*Account, error) {
	var doc mongoAccount
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapMongoErr(err)
	}
	return doc.toAccount(), nil
}

func mapMongoErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(ErrConflict, err)
	default:
		return errors.Join(ErrStorageUnavailable, err)
	}
}
