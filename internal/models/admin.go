package models

import "context"

// Admin is an operator. Maintained elsewhere; read-only here.
type Admin struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	DepartmentIDs  []int  `json:"department_ids"`
	AllDepartments bool   `json:"all_departments"`
}

func (a *Admin) InDepartment(departmentID int) bool {
	for _, id := range a.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}

type Department struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	MenuKey string `json:"menu_key"`
	Order   int    `json:"order"`
}

// Client is a known contact record, matched by normalized phone.
type Client struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type AdminRepository interface {
	GetByID(ctx context.Context, id int) (*Admin, error)
	ListByDepartment(ctx context.Context, departmentID int) ([]*Admin, error)
}

type DepartmentRepository interface {
	// List returns departments in menu order.
	List(ctx context.Context) ([]*Department, error)
	GetByID(ctx context.Context, id int) (*Department, error)
}

type ClientRepository interface {
	FindByPhone(ctx context.Context, normalizedPhone string) (*Client, error)
	GetByID(ctx context.Context, id int) (*Client, error)
}
