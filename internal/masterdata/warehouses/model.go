package warehouses

import (
	"time"
)

// Warehouse represents a stocking location. Warehouses are never hard
// deleted; renaming is the only mutation after creation.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
