package tourismapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/tourism-companion/internal/models"
)

// PlaceDTO — место в ответе API.
type PlaceDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Excerpt     string          `json:"excerpt"`
	Description string          `json:"description"`
	Cover       string          `json:"cover"`
	Gallery     []string        `json:"gallery"`
	Coordinates *CoordinatesDTO `json:"coordinates"`
	Rating      float64         `json:"rating"`
	IsTop       bool            `json:"is_top"`
	Reviews     []ReviewDTO     `json:"reviews"`
}

// CoordinatesDTO — координаты места.
type CoordinatesDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ReviewDTO — отзыв в ответе API.
type ReviewDTO struct {
	ID      int64          `json:"id"`
	PlaceID int64          `json:"place_id"`
	Rating  float64        `json:"rating"`
	Comment string         `json:"comment"`
	Date    string         `json:"date"`
	Images  []string       `json:"images"`
	User    *ReviewUserDTO `json:"user"`
}

// ReviewUserDTO — автор отзыва.
type ReviewUserDTO struct {
	FullName string `json:"full_name"`
	Country  string `json:"country"`
	PfpURL   string `json:"pfp_url"`
}

// AllPlacesDTO — полный каталог мест с хэшами категорий.
type AllPlacesDTO struct {
	Attractions        []PlaceDTO `json:"attractions"`
	Restaurants        []PlaceDTO `json:"restaurants"`
	Accommodations     []PlaceDTO `json:"accommodations"`
	AttractionsHash    string     `json:"attractions_hash"`
	RestaurantsHash    string     `json:"restaurants_hash"`
	AccommodationsHash string     `json:"accommodations_hash"`
}

// ByCategory возвращает места и хэш одной категории из полного каталога.
func (a *AllPlacesDTO) ByCategory(c models.Category) ([]PlaceDTO, string) {
	switch c {
	case models.Sights:
		return a.Attractions, a.AttractionsHash
	case models.Restaurants:
		return a.Restaurants, a.RestaurantsHash
	case models.Hotels:
		return a.Accommodations, a.AccommodationsHash
	}
	return nil, ""
}

// CategoryDTO — места одной категории и текущий хэш категории.
type CategoryDTO struct {
	Data []PlaceDTO `json:"data"`
	Hash string     `json:"hash"`
}

type favoritesResponse struct {
	Data []PlaceDTO `json:"data"`
}

// CurrencyDTO — курс одной валюты.
type CurrencyDTO struct {
	CharCode string    `json:"char_code"`
	Value    FlexFloat `json:"value"`
}

type currenciesResponse struct {
	Currencies []CurrencyDTO `json:"currencies"`
}

// FlexFloat принимает число, строку с точкой или запятой, либо null.
// Нечитаемое значение превращается в NaN, а не в ошибку разбора всего ответа.
type FlexFloat float64

// UnmarshalJSON реализует json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat(math.NaN())

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexFloat(v)
	}
	return nil
}

// PersonalDataDTO — профиль пользователя в ответе API.
type PersonalDataDTO struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Country  string `json:"country"`
	PfpURL   string `json:"pfp_url"`
	Language string `json:"language"`
}

type personalDataResponse struct {
	Data PersonalDataDTO `json:"data"`
}

// UpdatePersonalDataRequest — тело запроса на изменение профиля.
// Email отправляется только если пользователь его изменил.
type UpdatePersonalDataRequest struct {
	FullName string  `json:"full_name"`
	Country  string  `json:"country"`
	Email    *string `json:"email,omitempty"`
}

// SimpleResponse — ответ API с одним сообщением.
type SimpleResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// ToPlace преобразует место из ответа API в модель. Отзывы переносятся с PlaceID места.
func (p PlaceDTO) ToPlace(c models.Category) (models.Place, error) {
	if p.ID <= 0 {
		return models.Place{}, fmt.Errorf("%w: place has invalid id %d", ErrDecode, p.ID)
	}
	place := models.Place{
		ID:          p.ID,
		Category:    c,
		Name:        p.Name,
		Excerpt:     p.Excerpt,
		Description: p.Description,
		Cover:       p.Cover,
		Gallery:     p.Gallery,
		Rating:      p.Rating,
		IsTop:       p.IsTop,
	}
	if p.Coordinates != nil {
		place.Latitude = p.Coordinates.Latitude
		place.Longitude = p.Coordinates.Longitude
	}
	for _, r := range p.Reviews {
		review, err := r.ToReview(p.ID)
		if err != nil {
			return models.Place{}, err
		}
		place.Reviews = append(place.Reviews, review)
	}
	return place, nil
}

// ToReview преобразует отзыв в модель. placeID используется, если сервер его не прислал.
func (r ReviewDTO) ToReview(placeID int64) (models.Review, error) {
	if r.ID <= 0 {
		return models.Review{}, fmt.Errorf("%w: review has invalid id %d", ErrDecode, r.ID)
	}
	if r.PlaceID != 0 && r.PlaceID != placeID {
		return models.Review{}, fmt.Errorf("%w: review %d belongs to place %d, not %d", ErrDecode, r.ID, r.PlaceID, placeID)
	}
	review := models.Review{
		ID:      r.ID,
		PlaceID: placeID,
		Rating:  r.Rating,
		Comment: r.Comment,
		Date:    r.Date,
		Images:  r.Images,
	}
	if r.User != nil {
		review.Author = r.User.FullName
		review.AuthorCountry = r.User.Country
		review.AuthorPfpURL = r.User.PfpURL
	}
	return review, nil
}

// ToPersonalData преобразует профиль в модель.
func (p PersonalDataDTO) ToPersonalData() models.PersonalData {
	return models.PersonalData{
		ID:       p.ID,
		FullName: p.FullName,
		Email:    p.Email,
		Country:  p.Country,
		PfpURL:   p.PfpURL,
		Language: p.Language,
	}
}

// MapPlaces преобразует места одной категории и собирает их отзывы в отдельный список.
// Повторяющиеся id мест и отзывов схлопываются: остаётся последняя копия.
func MapPlaces(dtos []PlaceDTO, c models.Category, favorites map[int64]bool) ([]models.Place, []models.Review, error) {
	places := make([]models.Place, 0, len(dtos))
	placePos := make(map[int64]int, len(dtos))
	placeReviews := make(map[int64][]models.Review, len(dtos))
	for _, dto := range dtos {
		place, err := dto.ToPlace(c)
		if err != nil {
			return nil, nil, err
		}
		place.IsFavorite = favorites[place.ID]
		placeReviews[place.ID] = place.Reviews
		place.Reviews = nil
		if i, ok := placePos[place.ID]; ok {
			places[i] = place
			continue
		}
		placePos[place.ID] = len(places)
		places = append(places, place)
	}

	var reviews []models.Review
	reviewPos := make(map[int64]int)
	for _, place := range places {
		for _, r := range placeReviews[place.ID] {
			if i, ok := reviewPos[r.ID]; ok {
				reviews[i] = r
				continue
			}
			reviewPos[r.ID] = len(reviews)
			reviews = append(reviews, r)
		}
	}
	return places, reviews, nil
}
