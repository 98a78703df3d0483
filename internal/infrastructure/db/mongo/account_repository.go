package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stackpoint/account-service/internal/core/domain"
)

const (
	collectionAccounts     = "accounts"
	collectionRoleCounters = "role_counters"
)

// AccountRepository persists accounts and maintains a per-role holder
// counter. The counter exists so that last-admin protection can be applied
// as one conditional decrement instead of a racy count-then-remove.
type AccountRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{
		col:      db.Collection(collectionAccounts),
		counters: db.Collection(collectionRoleCounters),
	}
}

type accountDoc struct {
	ID                 string   `bson:"_id"`
	Email              string   `bson:"email"`
	Username           string   `bson:"username,omitempty"`
	PasswordHash       string   `bson:"password_hash,omitempty"`
	SecurityStamp      string   `bson:"security_stamp"`
	EmailConfirmed     bool     `bson:"email_confirmed"`
	LockoutUntil       *int64   `bson:"lockout_until,omitempty"`
	TwoFactorEnabled   bool     `bson:"two_factor_enabled"`
	TOTPSecret         []byte   `bson:"totp_secret,omitempty"`
	RecoveryCodeHashes []string `bson:"recovery_code_hashes,omitempty"`
	Roles              []string `bson:"roles"`
	CreatedAt          int64    `bson:"created_at"`
	UpdatedAt          int64    `bson:"updated_at"`
}

func toAccountDoc(a *domain.Account) accountDoc {
	doc := accountDoc{
		ID:                 a.ID,
		Email:              a.Email,
		Username:           a.Username,
		PasswordHash:       a.PasswordHash,
		SecurityStamp:      a.SecurityStamp,
		EmailConfirmed:     a.EmailConfirmed,
		TwoFactorEnabled:   a.TwoFactor.Enabled,
		TOTPSecret:         a.TwoFactor.TOTPSecret,
		RecoveryCodeHashes: a.TwoFactor.RecoveryCodeHashes,
		Roles:              a.Roles,
		CreatedAt:          a.CreatedAt.Unix(),
		UpdatedAt:          a.UpdatedAt.Unix(),
	}
	if a.LockoutUntil != nil {
		ts := a.LockoutUntil.Unix()
		doc.LockoutUntil = &ts
	}
	return doc
}

func (d accountDoc) toDomain() *domain.Account {
	a := &domain.Account{
		ID:             d.ID,
		Email:          d.Email,
		Username:       d.Username,
		PasswordHash:   d.PasswordHash,
		SecurityStamp:  d.SecurityStamp,
		EmailConfirmed: d.EmailConfirmed,
		TwoFactor: domain.TwoFactorSettings{
			Enabled:            d.TwoFactorEnabled,
			TOTPSecret:         d.TOTPSecret,
			RecoveryCodeHashes: d.RecoveryCodeHashes,
		},
		Roles:     d.Roles,
		CreatedAt: time.Unix(d.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(d.UpdatedAt, 0).UTC(),
	}
	if d.LockoutUntil != nil {
		t := time.Unix(*d.LockoutUntil, 0).UTC()
		a.LockoutUntil = &t
	}
	return a
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail resolves a login identifier, matching the email address or the
// username.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": email},
		bson.M{"username": email},
	}})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc accountDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toAccountDoc(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	for _, role := range account.Roles {
		r.bumpCounter(ctx, role, 1)
	}
	return account, nil
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, hash, newStamp string) error {
	return r.update(ctx, id, bson.M{"password_hash": hash, "security_stamp": newStamp})
}

func (r *AccountRepository) UpdateSecurityStamp(ctx context.Context, id, newStamp string) error {
	return r.update(ctx, id, bson.M{"security_stamp": newStamp})
}

func (r *AccountRepository) SetLockout(ctx context.Context, id string, until *int64) error {
	if until == nil {
		ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$unset": bson.M{"lockout_until": ""},
			"$set":   bson.M{"updated_at": time.Now().Unix()},
		})
		if err != nil {
			return fmt.Errorf("clear lockout: %w", err)
		}
		if res.MatchedCount == 0 {
			return domain.ErrAccountNotFound
		}
		return nil
	}
	return r.update(ctx, id, bson.M{"lockout_until": *until})
}

func (r *AccountRepository) SetEmailConfirmed(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"email_confirmed": true})
}

// ConsumeRecoveryCode pulls the matching hash from the account's recovery
// codes. The match and the removal are one conditional update, so a
// recovery code can be spent at most once.
func (r *AccountRepository) ConsumeRecoveryCode(ctx context.Context, id, codeHash string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "recovery_code_hashes": codeHash},
		bson.M{
			"$pull": bson.M{"recovery_code_hashes": codeHash},
			"$set":  bson.M{"updated_at": time.Now().Unix()},
		},
	)
	if err != nil {
		return fmt.Errorf("consume recovery code: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRecoveryCodeInvalid
	}
	return nil
}

func (r *AccountRepository) AddRole(ctx context.Context, id, role string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "roles": bson.M{"$ne": role}},
		bson.M{
			"$addToSet": bson.M{"roles": role},
			"$set":      bson.M{"updated_at": time.Now().Unix()},
		},
	)
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	r.bumpCounter(ctx, role, 1)
	return nil
}

// RemoveRole removes the role from the account. When minHolders > 0 the
// holder counter is decremented through a conditional update that only
// matches while at least minHolders accounts hold the role; two concurrent
// removals of different holders therefore cannot both pass the floor.
func (r *AccountRepository) RemoveRole(ctx context.Context, id, role string, minHolders int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if minHolders > 0 {
		if err := r.decrementWithFloor(ctx, role, minHolders); err != nil {
			return err
		}
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "roles": role},
		bson.M{
			"$pull": bson.M{"roles": role},
			"$set":  bson.M{"updated_at": time.Now().Unix()},
		},
	)
	if err != nil || res.MatchedCount == 0 {
		// The account never lost the role; restore the reserved slot.
		if minHolders > 0 {
			r.bumpCounter(ctx, role, 1)
		}
		if err != nil {
			return fmt.Errorf("remove role: %w", err)
		}
		return domain.ErrRoleNotAssigned
	}
	if minHolders == 0 {
		r.bumpCounter(ctx, role, -1)
	}
	return nil
}

func (r *AccountRepository) CountRoleHolders(ctx context.Context, role string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	count, err := r.col.CountDocuments(ctx, bson.M{"roles": role})
	if err != nil {
		return 0, fmt.Errorf("count role holders: %w", err)
	}
	return count, nil
}

// Delete removes the account and releases its role counter slots. For each
// administrative role held, a holder slot is reserved through the same
// conditional decrement RemoveRole uses before the document is removed, so
// concurrent deletions of different holders cannot both drop a role past
// its floor. The deletion is pinned to the role set that was reserved; a
// concurrent role change aborts it and the slots are restored.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc accountDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}

	var reserved []string
	restore := func() {
		for _, role := range reserved {
			r.bumpCounter(ctx, role, 1)
		}
	}
	for _, role := range doc.Roles {
		if !domain.IsAdministrative(role) {
			continue
		}
		if err := r.decrementWithFloor(ctx, role, 2); err != nil {
			restore()
			return err
		}
		reserved = append(reserved, role)
	}

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "roles": doc.Roles})
	if err != nil {
		restore()
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		restore()
		return fmt.Errorf("delete account: role set changed concurrently")
	}
	for _, role := range doc.Roles {
		if !domain.IsAdministrative(role) {
			r.bumpCounter(ctx, role, -1)
		}
	}
	return nil
}

// decrementWithFloor atomically takes one holder slot for the role,
// failing when fewer than minHolders remain. A missing counter document is
// reconciled from the authoritative account collection first; counters can
// drift when processes die between the two writes.
func (r *AccountRepository) decrementWithFloor(ctx context.Context, role string, minHolders int64) error {
	filter := bson.M{"_id": role, "holders": bson.M{"$gte": minHolders}}
	update := bson.M{"$inc": bson.M{"holders": -1}}

	err := r.counters.FindOneAndUpdate(ctx, filter, update).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("decrement role counter: %w", err)
	}

	// Counter absent or below floor: reconcile and retry once.
	actual, countErr := r.CountRoleHolders(ctx, role)
	if countErr != nil {
		return countErr
	}
	if actual < minHolders {
		return domain.ErrLastAdmin
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.counters.UpdateOne(ctx, bson.M{"_id": role}, bson.M{"$set": bson.M{"holders": actual}}, opts); err != nil {
		return fmt.Errorf("reconcile role counter: %w", err)
	}
	if err := r.counters.FindOneAndUpdate(ctx, filter, update).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrLastAdmin
		}
		return fmt.Errorf("decrement role counter: %w", err)
	}
	return nil
}

// bumpCounter adjusts a holder counter best-effort; drift is repaired by
// decrementWithFloor's reconciliation.
func (r *AccountRepository) bumpCounter(ctx context.Context, role string, delta int64) {
	opts := options.Update().SetUpsert(true)
	_, _ = r.counters.UpdateOne(ctx, bson.M{"_id": role}, bson.M{"$inc": bson.M{"holders": delta}}, opts)
}

func (r *AccountRepository) update(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set["updated_at"] = time.Now().Unix()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
