/*
category.go - Category tree management

PURPOSE:
  Categories form a per-company tree. Codes are unique within a company,
  parents must belong to the same company, re-parenting onto a descendant
  is refused (no cycles), and a category cannot be deleted while children,
  expenses, or budgets still reference it.
*/
package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crane/fiscal-engine/engine"
)

// =============================================================================
// CATEGORIES SERVICE
// =============================================================================

// Categories owns the category tree.
type Categories struct {
	Store CategoryStore

	NewID func() engine.CategoryID
	Now   func() time.Time
}

func NewCategories(store CategoryStore) *Categories {
	return &Categories{
		Store: store,
		NewID: func() engine.CategoryID { return engine.CategoryID(uuid.NewString()) },
		Now:   time.Now,
	}
}

// CategoryInput carries the fields a caller may set on a new category.
type CategoryInput struct {
	CompanyID engine.CompanyID
	Code      string
	Name      string
	ParentID  engine.CategoryID
	IsActive  bool
}

// Create validates and persists a new category.
func (c *Categories) Create(ctx context.Context, in CategoryInput) (*Category, error) {
	if in.Code == "" || in.Name == "" {
		return nil, fmt.Errorf("category code and name are required")
	}

	if _, err := c.Store.CategoryByCode(ctx, in.CompanyID, in.Code); err == nil {
		return nil, fmt.Errorf("category code %q already exists: %w", in.Code, engine.ErrConflict)
	} else if !engine.IsNotFound(err) {
		return nil, err
	}

	if in.ParentID != "" {
		parent, err := c.Store.Category(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.CompanyID != in.CompanyID {
			return nil, fmt.Errorf("parent category %s not found in company: %w", in.ParentID, engine.ErrNotFound)
		}
	}

	now := c.Now()
	cat := &Category{
		ID:        c.NewID(),
		CompanyID: in.CompanyID,
		Code:      in.Code,
		Name:      in.Name,
		ParentID:  in.ParentID,
		IsActive:  in.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Store.CreateCategory(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// Get returns one category.
func (c *Categories) Get(ctx context.Context, id engine.CategoryID) (*Category, error) {
	return c.Store.Category(ctx, id)
}

// List returns categories matching the filter.
func (c *Categories) List(ctx context.Context, f CategoryFilter) ([]*Category, error) {
	return c.Store.Categories(ctx, f)
}

// CategoryUpdate carries the editable fields. Nil means "leave unchanged".
type CategoryUpdate struct {
	Code     *string
	Name     *string
	ParentID *engine.CategoryID // pointer to "" clears the parent
	IsActive *bool
}

// Update edits a category, guarding code uniqueness and tree shape.
func (c *Categories) Update(ctx context.Context, id engine.CategoryID, in CategoryUpdate) (*Category, error) {
	cat, err := c.Store.Category(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Code != nil && *in.Code != cat.Code {
		if _, err := c.Store.CategoryByCode(ctx, cat.CompanyID, *in.Code); err == nil {
			return nil, fmt.Errorf("category code %q already exists: %w", *in.Code, engine.ErrConflict)
		} else if !engine.IsNotFound(err) {
			return nil, err
		}
		cat.Code = *in.Code
	}

	if in.ParentID != nil && *in.ParentID != cat.ParentID {
		if *in.ParentID != "" {
			parent, err := c.Store.Category(ctx, *in.ParentID)
			if err != nil {
				return nil, err
			}
			if parent.CompanyID != cat.CompanyID {
				return nil, fmt.Errorf("parent category %s not found in company: %w", *in.ParentID, engine.ErrNotFound)
			}
			descendant, err := c.isDescendant(ctx, *in.ParentID, id)
			if err != nil {
				return nil, err
			}
			if descendant {
				return nil, fmt.Errorf("cannot set a descendant category as parent: %w", engine.ErrConflict)
			}
		}
		cat.ParentID = *in.ParentID
	}

	if in.Name != nil {
		cat.Name = *in.Name
	}
	if in.IsActive != nil {
		cat.IsActive = *in.IsActive
	}
	cat.UpdatedAt = c.Now()

	if err := c.Store.UpdateCategory(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// Delete removes a category that nothing references.
func (c *Categories) Delete(ctx context.Context, id engine.CategoryID) error {
	if _, err := c.Store.Category(ctx, id); err != nil {
		return err
	}

	refs, err := c.Store.CategoryRefCounts(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case refs.Children > 0:
		return fmt.Errorf("category has child categories: %w", engine.ErrConflict)
	case refs.Expenses > 0:
		return fmt.Errorf("category has associated expenses: %w", engine.ErrConflict)
	case refs.Budgets > 0:
		return fmt.Errorf("category has associated budgets: %w", engine.ErrConflict)
	}

	return c.Store.DeleteCategory(ctx, id)
}

// isDescendant walks up from candidate's parents looking for ancestor.
func (c *Categories) isDescendant(ctx context.Context, candidate, ancestor engine.CategoryID) (bool, error) {
	current := candidate
	for current != "" {
		if current == ancestor {
			return true, nil
		}
		cat, err := c.Store.Category(ctx, current)
		if err != nil {
			return false, err
		}
		current = cat.ParentID
	}
	return false, nil
}
