package access

import (
	"context"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/services/hierarchy"
)

// Scope is the set of employees an actor can see: its own subtree for employees,
// nothing for clients.
type Scope struct {
	actor   Actor
	tree    *hierarchy.Tree
	members map[int64]struct{}
}

func NewScope(actor Actor, tree *hierarchy.Tree) Scope {
	s := Scope{actor: actor, tree: tree, members: map[int64]struct{}{}}
	if actor.IsEmployee() {
		for _, id := range tree.SubtreeIDs(actor.Employee.ID) {
			s.members[id] = struct{}{}
		}
	}
	return s
}

func LoadScope(ctx context.Context, db *gorm.DB, actor Actor) (Scope, error) {
	tree, err := hierarchy.LoadTree(ctx, db)
	if err != nil {
		return Scope{}, err
	}
	return NewScope(actor, tree), nil
}

func (s Scope) Actor() Actor {
	return s.actor
}

func (s Scope) Tree() *hierarchy.Tree {
	return s.tree
}

// EmployeeIDs lists the actor's subtree, root first.
func (s Scope) EmployeeIDs() []int64 {
	if !s.actor.IsEmployee() {
		return nil
	}
	return s.tree.SubtreeIDs(s.actor.Employee.ID)
}

func (s Scope) SalespersonIDs() []int64 {
	if !s.actor.IsEmployee() {
		return nil
	}
	return lo.Map(s.tree.Salespeople(s.actor.Employee.ID), func(e models.EmployeeProfile, _ int) int64 {
		return e.ID
	})
}

func (s Scope) IncludesEmployee(id int64) bool {
	_, ok := s.members[id]
	return ok
}

// CanManageEmployee is true for strict subordinates; nobody manages themselves.
func (s Scope) CanManageEmployee(id int64) bool {
	return s.actor.IsEmployee() && id != s.actor.Employee.ID && s.IncludesEmployee(id)
}

func (s Scope) CanViewClient(c models.ClientProfile) bool {
	if s.actor.IsClient() {
		return s.actor.Client.ID == c.ID
	}
	return s.IncludesEmployee(c.SalespersonID)
}

func (s Scope) CanViewOrder(o models.Order) bool {
	if s.actor.IsClient() {
		return s.actor.Client.ID == o.ClientID
	}
	return s.IncludesEmployee(o.SalespersonID)
}
