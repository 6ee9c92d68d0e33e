package models

// Category types.
const (
	CategoryTypeIncome  = "income"
	CategoryTypeExpense = "expense"
	CategoryTypeBoth    = "both"
)

// Category represents an income/expense category. A category without an
// owner is system-provided and visible to every user.
type Category struct {
	SyncMeta
	Name  string `gorm:"size:64;not null" json:"name"`
	Type  string `gorm:"size:16;index;not null" json:"type"`
	Icon  string `gorm:"size:32" json:"icon"`
	Color string `gorm:"size:16" json:"color"`
}

func (Category) TableName() string { return "categories" }

// Shared reports whether the category is system-provided (no owner).
func (c *Category) Shared() bool { return c.OwnerID == "" }
