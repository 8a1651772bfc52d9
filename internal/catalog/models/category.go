package models

// Category is a taxonomy node used to group templates. Name is unique.
type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	DisplayName   string        `json:"displayName"`
	Description   string        `json:"description,omitempty"`
	Icon          string        `json:"icon,omitempty"`
	IsActive      bool          `json:"isActive"`
	SortOrder     int           `json:"sortOrder"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// Subcategory belongs to exactly one category. Name is unique within the
// parent category.
type Subcategory struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	IsActive    bool   `json:"isActive"`
	SortOrder   int    `json:"sortOrder"`
}
