package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// DBX: Database Error
	ErrGeneric error = errors.New("DBX: Internal server error")

	// DBXO: Bad operation
	// DBXQ: Bad query
	ErrDuplicate error = errors.New("DBXO: Duplicate")
	ErrNotFound  error = errors.New("DBXQ: Not found")
)

var (
	// Class 23 — Integrity Constraint Violation
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
)

type Repository[T any] interface {
	Find(ctx context.Context, options FindOptions) ([]*T, error)
	Count(ctx context.Context, options FindOptions) (int64, error)
	Create(ctx context.Context, entity *T) error
	Updates(ctx context.Context, where WhereType, values map[string]any) error
}

// gorm generic repository
type repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) Repository[T] {
	return &repository[T]{
		db: db,
	}
}

func (r *repository[T]) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case UniqueViolation, ForeignKeyViolation:
			return ErrDuplicate
		}
	}
	return ErrGeneric
}

func (r *repository[T]) applyFindOptionsToDB(db *gorm.DB, options FindOptions) *gorm.DB {
	isSelectAll := len(options.Select) == 1 && options.Select[0] == "*"
	if options.Select != nil && !isSelectAll {
		db = db.Select(strings.Join(options.Select, ","))
	}

	if options.Where != nil {
		db = db.Where(map[string]any(options.Where))
	}

	if options.Order != nil {
		var orders string
		for field, order := range options.Order {
			orders += fmt.Sprintf("%s %s,", field, order)
		}
		orders = strings.TrimSuffix(orders, ",")
		db = db.Order(orders)
	}

	if options.Limit != 0 {
		db = db.Limit(int(options.Limit))
	}
	if options.Offset != 0 {
		db = db.Offset(int(options.Offset))
	}

	return db
}

func (r *repository[T]) Find(ctx context.Context, options FindOptions) ([]*T, error) {
	var results []*T
	db := r.db.WithContext(ctx).Model(results)
	db = r.applyFindOptionsToDB(db, options)

	if err := db.Find(&results).Error; err != nil {
		return results, r.wrapError(err)
	}

	return results, nil
}

func (r *repository[T]) Count(ctx context.Context, options FindOptions) (int64, error) {
	var count int64
	var entity T
	db := r.db.WithContext(ctx).Model(&entity)
	if options.Where != nil {
		db = db.Where(map[string]any(options.Where))
	}

	if err := db.Count(&count).Error; err != nil {
		return 0, r.wrapError(err)
	}

	return count, nil
}

func (r *repository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return r.wrapError(err)
	}
	return nil
}

func (r *repository[T]) Updates(ctx context.Context, where WhereType, values map[string]any) error {
	var entity T
	db := r.db.WithContext(ctx).Model(&entity).Where(map[string]any(where))
	if err := db.Updates(values).Error; err != nil {
		return r.wrapError(err)
	}
	return nil
}
