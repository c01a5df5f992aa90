package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentUPI  = "upi"
)

// Regulatory schedules for restricted medicines. Stored as metadata only.
const (
	ScheduleH  = "H"
	ScheduleH1 = "H1"
)

// DefaultMinQuantity is the low-stock threshold applied when none is given.
const DefaultMinQuantity = 10

// User - Staff member or administrator operating the shop
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:80;not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;size:120;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"` // Never return this in JSON
	Role         string     `gorm:"size:20;not null;default:staff" json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Supplier struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	ContactPerson string    `gorm:"size:100" json:"contact_person"`
	Phone         string    `gorm:"size:20" json:"phone"`
	Email         string    `gorm:"size:120" json:"email"`
	Address       string    `gorm:"type:text" json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Product - A stocked medicine or item
type Product struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"size:100;not null;index" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Quantity     int             `gorm:"not null;default:0;check:chk_products_quantity,quantity >= 0" json:"quantity"`
	MinQuantity  int             `gorm:"not null;default:10" json:"min_quantity"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null;check:chk_products_price,price >= 0" json:"price"`
	ExpiryDate   datatypes.Date  `gorm:"not null;index" json:"expiry_date"`
	SupplierID   *uint           `gorm:"index" json:"supplier_id"`
	Supplier     *Supplier       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"supplier,omitempty"`
	IsScheduled  bool            `gorm:"not null;default:false" json:"is_scheduled"`
	ScheduleType string          `gorm:"size:5" json:"schedule_type,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Today truncates now to midnight UTC of the same calendar day. Expiry dates
// are stored at that precision.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsExpired reports whether the product expires before the day of now.
func (p Product) IsExpired(now time.Time) bool {
	return time.Time(p.ExpiryDate).Before(Today(now))
}

func (p Product) IsLowStock() bool { return p.Quantity <= p.MinQuantity }

// Bill - The sale header
type Bill struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CustomerName  string          `gorm:"size:100;not null" json:"customer_name"`
	CustomerPhone string          `gorm:"size:20" json:"customer_phone"`
	CustomerEmail string          `gorm:"size:120" json:"customer_email"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_amount"`
	BillDate      time.Time       `gorm:"not null;index" json:"bill_date"`
	PaymentMethod string          `gorm:"size:10;not null" json:"payment_method"`
	CreatedBy     *uint           `gorm:"index" json:"created_by"`
	Creator       *User           `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"creator,omitempty"`
	Items         []BillItem      `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BillItem - One product line, priced at the moment of sale
type BillItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	BillID       uint            `gorm:"not null;index" json:"bill_id"`
	ProductID    uint            `gorm:"not null;index" json:"product_id"`
	Product      *Product        `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	ProductName  string          `gorm:"size:100;not null" json:"product_name"`
	Quantity     int             `gorm:"not null;check:chk_bill_items_quantity,quantity > 0" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"` // Snapshot of price at time of sale
	IsScheduled  bool            `gorm:"not null;default:false" json:"is_scheduled"`
	ScheduleType string          `gorm:"size:5" json:"schedule_type,omitempty"`
}

func (i BillItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ActivityLog - Append-only audit trail
type ActivityLog struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    *uint             `gorm:"index" json:"user_id"`
	User      *User             `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Action    string            `gorm:"size:50;not null;index" json:"action"`
	Details   string            `gorm:"type:text" json:"details"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamp time.Time         `gorm:"not null;index" json:"timestamp"`
}

// SchemaOrder lists every table model in foreign-key dependency order.
func SchemaOrder() []interface{} {
	return []interface{}{
		&User{},
		&Supplier{},
		&Product{},
		&Bill{},
		&BillItem{},
		&ActivityLog{},
	}
}
