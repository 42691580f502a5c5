package models

// Course is the purchasable catalogue entry an order and enrollment point at.
// Content hierarchy below a course lives outside this service.
type Course struct {
	BaseModel

	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`

	// Price in minor currency units (paise).
	Price       int64 `gorm:"not null" json:"price"`
	IsPublished bool  `gorm:"default:false;index" json:"is_published"`
}
