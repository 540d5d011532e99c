// Package hierarchy walks the employee management tree.
package hierarchy

import (
	"sort"

	"github.com/samber/lo"

	"sales-crm/internal/database/models"
)

// Tree is an in-memory snapshot of the manager -> direct reports edges.
type Tree struct {
	byID    map[int64]models.EmployeeProfile
	reports map[int64][]int64
}

func NewTree(employees []models.EmployeeProfile) *Tree {
	t := &Tree{
		byID:    make(map[int64]models.EmployeeProfile, len(employees)),
		reports: make(map[int64][]int64),
	}
	for _, e := range employees {
		t.byID[e.ID] = e
		if e.ManagedBy != nil {
			t.reports[*e.ManagedBy] = append(t.reports[*e.ManagedBy], e.ID)
		}
	}
	for _, ids := range t.reports {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return t
}

func (t *Tree) Get(id int64) (models.EmployeeProfile, bool) {
	e, ok := t.byID[id]
	return e, ok
}

func (t *Tree) DirectReports(id int64) []models.EmployeeProfile {
	return lo.Map(t.reports[id], func(rid int64, _ int) models.EmployeeProfile {
		return t.byID[rid]
	})
}

// Flatten calls f on root and then, depth first, on every employee it transitively
// manages, concatenating the results. An unknown root yields nil.
func Flatten[T any](t *Tree, rootID int64, f func(models.EmployeeProfile) []T) []T {
	root, ok := t.byID[rootID]
	if !ok {
		return nil
	}
	seen := make(map[int64]struct{}, len(t.byID))
	return flatten(t, root, f, seen)
}

func flatten[T any](t *Tree, e models.EmployeeProfile, f func(models.EmployeeProfile) []T, seen map[int64]struct{}) []T {
	if _, ok := seen[e.ID]; ok {
		return nil
	}
	seen[e.ID] = struct{}{}

	acc := f(e)
	for _, rid := range t.reports[e.ID] {
		acc = append(acc, flatten(t, t.byID[rid], f, seen)...)
	}
	return acc
}

// SubtreeIDs returns root and all of its transitive reports.
func (t *Tree) SubtreeIDs(rootID int64) []int64 {
	return Flatten(t, rootID, func(e models.EmployeeProfile) []int64 {
		return []int64{e.ID}
	})
}

func (t *Tree) Subordinates(rootID int64) []models.EmployeeProfile {
	return Flatten(t, rootID, func(e models.EmployeeProfile) []models.EmployeeProfile {
		if e.ID == rootID {
			return nil
		}
		return []models.EmployeeProfile{e}
	})
}

// Salespeople lists the salespeople a client under rootID may be assigned to.
func (t *Tree) Salespeople(rootID int64) []models.EmployeeProfile {
	return Flatten(t, rootID, func(e models.EmployeeProfile) []models.EmployeeProfile {
		if e.Title != models.TitleSalesperson {
			return nil
		}
		return []models.EmployeeProfile{e}
	})
}

func (t *Tree) Contains(rootID, id int64) bool {
	return lo.Contains(t.SubtreeIDs(rootID), id)
}
