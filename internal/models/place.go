package models

// Place представляет место (достопримечательность, ресторан или гостиницу) со всеми полями.
// Флаг IsFavorite меняется пользователем локально и переносится при полной замене категории.
type Place struct {
	ID          int64
	Category    Category
	Name        string
	Excerpt     string
	Description string
	Cover       string
	Gallery     []string
	Latitude    float64
	Longitude   float64
	Rating      float64
	IsTop       bool // место входит в подборку лучших, рассчитанную сервером
	IsFavorite  bool
	Reviews     []Review // заполняется только при чтении места по ID
}

// PlaceShort — сокращённое представление места для списков.
type PlaceShort struct {
	ID         int64
	Category   Category
	Name       string
	Excerpt    string
	Cover      string
	Rating     float64
	IsFavorite bool
}

// Short возвращает сокращённое представление места.
func (p Place) Short() PlaceShort {
	return PlaceShort{
		ID:         p.ID,
		Category:   p.Category,
		Name:       p.Name,
		Excerpt:    p.Excerpt,
		Cover:      p.Cover,
		Rating:     p.Rating,
		IsFavorite: p.IsFavorite,
	}
}

// ShortList преобразует список мест в список сокращённых представлений.
func ShortList(places []Place) []PlaceShort {
	res := make([]PlaceShort, 0, len(places))
	for _, p := range places {
		res = append(res, p.Short())
	}
	return res
}

// Review — отзыв о месте. Отдельного жизненного цикла нет:
// отзывы заменяются целиком вместе с местами.
type Review struct {
	ID            int64
	PlaceID       int64
	Rating        float64
	Comment       string
	Author        string
	AuthorCountry string
	AuthorPfpURL  string
	Date          string
	Images        []string
}
