package models

import "time"

// Металлы, типы предметов и единицы веса.
const (
	MetalGold     = "gold"
	MetalSilver   = "silver"
	MetalPlatinum = "platinum"

	ItemTypeBullion = "bullion"
	ItemTypeCoin    = "coin"
	ItemTypeBar     = "bar"
	ItemTypeJewelry = "jewelry"
	ItemTypeOther   = "other"

	UnitGram      = "g"
	UnitTroyOunce = "oz"

	DefaultSection = "Main"
)

// VaultItem - предмет из "хранилища" пользователя.
// Nullable-колонки notes/source/shelf_section читаются через coalesce.
type VaultItem struct {
	ID           int64     `db:"id" json:"id,string"`
	UserID       string    `db:"user_id" json:"-"`
	Label        string    `db:"label" json:"label"`
	Metal        string    `db:"metal" json:"metal"`
	ItemType     string    `db:"item_type" json:"item_type"`
	WeightValue  float64   `db:"weight_value" json:"weight_value"`
	WeightUnit   string    `db:"weight_unit" json:"weight_unit"`
	Purity       float64   `db:"purity" json:"purity"`
	PremiumPct   *float64  `db:"premium_pct" json:"premium_pct"`
	Notes        string    `db:"notes" json:"notes"`
	Source       string    `db:"source" json:"source"`
	ShelfSection string    `db:"shelf_section" json:"shelf_section"`
	ShelfSlot    *int      `db:"shelf_slot" json:"shelf_slot"`
	Accent       *string   `db:"accent" json:"accent"`
	Qty          int       `db:"qty" json:"qty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// VaultItemFields - проверенные поля для создания предмета.
type VaultItemFields struct {
	Label        string
	Metal        string
	ItemType     string
	WeightValue  float64
	WeightUnit   string
	Purity       float64
	PremiumPct   *float64
	Notes        string
	Source       string
	ShelfSection string
	ShelfSlot    *int // nil - назначить следующий свободный слот
	Accent       *string
	Qty          int
}

// VaultItemPatch - проверенные поля частичного обновления.
// Set*-флаги отличают "не передано" от "передан null".
type VaultItemPatch struct {
	Label         *string
	ShelfSection  *string
	SetShelfSlot  bool
	ShelfSlot     *int
	Accent        *string
	Notes         *string
	SetPremiumPct bool
	PremiumPct    *float64
	Qty           *int
}

// IsEmpty сообщает, что обновлять нечего.
func (p VaultItemPatch) IsEmpty() bool {
	return p.Label == nil && p.ShelfSection == nil && !p.SetShelfSlot &&
		p.Accent == nil && p.Notes == nil && !p.SetPremiumPct && p.Qty == nil
}

// ShelfMove - перемещение предмета на полке.
type ShelfMove struct {
	ID           int64
	ShelfSection *string
	SetShelfSlot bool
	ShelfSlot    *int
}

// VaultItemFilter - фильтры списка предметов.
type VaultItemFilter struct {
	Section  string
	ItemType string
	Limit    int
}

// SectionCount - количество предметов в секции полки.
type SectionCount struct {
	Section string `db:"section" json:"section"`
	Count   int    `db:"count" json:"count"`
}

// --- Тела запросов и ответов ---

// CreateVaultItemRequest - тело POST /api/vault/items.
type CreateVaultItemRequest struct {
	Label        string         `json:"label"`
	Metal        string         `json:"metal"`
	ItemType     string         `json:"item_type"`
	WeightValue  NullableFloat  `json:"weight_value"`
	WeightUnit   string         `json:"weight_unit"`
	Purity       NullableFloat  `json:"purity"`
	PremiumPct   NullableFloat  `json:"premium_pct"`
	Notes        string         `json:"notes"`
	Source       string         `json:"source"`
	Qty          NullableInt    `json:"qty"`
	ShelfSection string         `json:"shelf_section"`
	ShelfSlot    NullableInt    `json:"shelf_slot"`
	Accent       NullableString `json:"accent"`
}

// UpdateVaultItemRequest - тело PATCH /api/vault/items/{id}.
type UpdateVaultItemRequest struct {
	Label        NullableString `json:"label"`
	ShelfSection NullableString `json:"shelf_section"`
	ShelfSlot    NullableInt    `json:"shelf_slot"`
	Accent       NullableString `json:"accent"`
	Notes        NullableString `json:"notes"`
	PremiumPct   NullableFloat  `json:"premium_pct"`
	Qty          NullableInt    `json:"qty"`
}

// ReorderMoveRequest - одно перемещение в POST /api/vault/items/reorder.
type ReorderMoveRequest struct {
	ID           FlexID         `json:"id"`
	ShelfSection NullableString `json:"shelf_section"`
	ShelfSlot    NullableInt    `json:"shelf_slot"`
}

// ReorderRequest - тело POST /api/vault/items/reorder.
type ReorderRequest struct {
	Moves []ReorderMoveRequest `json:"moves"`
}

// VaultListMeta - метаданные списка.
type VaultListMeta struct {
	Count    int            `json:"count"`
	Limit    int            `json:"limit"`
	Sections []SectionCount `json:"sections"`
}

// VaultListResponse - ответ GET /api/vault/items.
type VaultListResponse struct {
	OK    bool          `json:"ok"`
	Items []VaultItem   `json:"items"`
	Meta  VaultListMeta `json:"meta"`
}

// VaultItemResponse - ответ на создание предмета.
type VaultItemResponse struct {
	OK   bool      `json:"ok"`
	Item VaultItem `json:"item"`
}

// ReorderResponse - ответ на перестановку.
type ReorderResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}
