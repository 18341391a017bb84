package main

// Book represents a book entity.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description"`
	ImageURL        string    `json:"imageUrl"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	Category        *Category `json:"category,omitempty"`
}

func (b Book) Key() int64 {
	return b.ID
}

// Category represents a books category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c Category) Key() int64 {
	return c.ID
}
