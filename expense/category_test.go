package expense_test

import (
	"context"
	"testing"

	"github.com/crane/fiscal-engine/engine"
	"github.com/crane/fiscal-engine/expense"
)

// =============================================================================
// CATEGORY TREE TESTS
// =============================================================================

func TestCategoryCreate_DuplicateCodeConflicts(t *testing.T) {
	f := newFixture(t)

	ctx := context.Background()
	_, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "MAT", Name: "Materials again", IsActive: true,
	})
	if !engine.IsConflict(err) {
		t.Errorf("expected conflict for duplicate code, got %v", err)
	}
}

func TestCategoryCreate_ParentMustBeSameCompany(t *testing.T) {
	f := newFixture(t)

	ctx := context.Background()
	foreign := &expense.Category{
		ID: "cat-foreign", CompanyID: "company-other", Code: "FOR",
		Name: "Foreign", IsActive: true,
	}
	if err := f.store.CreateCategory(ctx, foreign); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "SUB", Name: "Sub", ParentID: "cat-foreign", IsActive: true,
	})
	if !engine.IsNotFound(err) {
		t.Errorf("expected not found for cross-company parent, got %v", err)
	}
}

func TestCategoryUpdate_ReparentOntoDescendantRejected(t *testing.T) {
	// GIVEN: A chain root -> mid -> leaf
	// WHEN: Re-parenting root under leaf
	// THEN: Conflict - that would close a cycle

	f := newFixture(t)
	ctx := context.Background()

	root, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "ROOT", Name: "Root", IsActive: true,
	})
	if err != nil {
		t.Fatalf("setup root: %v", err)
	}
	mid, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "MID", Name: "Mid", ParentID: root.ID, IsActive: true,
	})
	if err != nil {
		t.Fatalf("setup mid: %v", err)
	}
	leaf, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "LEAF", Name: "Leaf", ParentID: mid.ID, IsActive: true,
	})
	if err != nil {
		t.Fatalf("setup leaf: %v", err)
	}

	_, err = f.categories.Update(ctx, root.ID, expense.CategoryUpdate{ParentID: &leaf.ID})
	if !engine.IsConflict(err) {
		t.Errorf("expected conflict re-parenting onto a descendant, got %v", err)
	}

	// Moving leaf directly under root is fine.
	if _, err := f.categories.Update(ctx, leaf.ID, expense.CategoryUpdate{ParentID: &root.ID}); err != nil {
		t.Errorf("expected valid re-parent to pass, got %v", err)
	}
}

func TestCategoryUpdate_CodeUniquenessEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "LAB", Name: "Labor", IsActive: true,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	taken := "MAT"
	if _, err := f.categories.Update(ctx, other.ID, expense.CategoryUpdate{Code: &taken}); !engine.IsConflict(err) {
		t.Errorf("expected conflict on taken code, got %v", err)
	}
}

func TestCategoryDelete_ReferencedCategoryProtected(t *testing.T) {
	// GIVEN: A category with an expense against it
	// WHEN: Deleting
	// THEN: Conflict until the reference is gone

	f := newFixture(t)
	ctx := context.Background()
	f.seedExpense(t, "e-1", 100, engine.StatusDraft)

	if err := f.categories.Delete(ctx, testCategory); !engine.IsConflict(err) {
		t.Errorf("expected conflict deleting referenced category, got %v", err)
	}

	if err := f.expenses.Delete(ctx, "e-1"); err != nil {
		t.Fatalf("cleanup expense: %v", err)
	}
	if err := f.categories.Delete(ctx, testCategory); err != nil {
		t.Errorf("expected delete to pass once unreferenced, got %v", err)
	}
}

func TestCategoryDelete_ParentProtectedByChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "P", Name: "Parent", IsActive: true,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := f.categories.Create(ctx, expense.CategoryInput{
		CompanyID: testCompany, Code: "C", Name: "Child", ParentID: parent.ID, IsActive: true,
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := f.categories.Delete(ctx, parent.ID); !engine.IsConflict(err) {
		t.Errorf("expected conflict deleting parent with children, got %v", err)
	}
}
