// Package models содержит доменные структуры приложения-путеводителя:
// места, отзывы, хэши категорий, курсы валют и персональные данные.
// Структуры используются репозиториями, локальным хранилищем и слоем представления.
package models

import "fmt"

// Category обозначает категорию мест. Значения совпадают с идентификаторами на сервере.
type Category int64

const (
	// Sights — достопримечательности
	Sights Category = 1
	// Restaurants — рестораны
	Restaurants Category = 2
	// Hotels — гостиницы
	Hotels Category = 3
)

// Categories возвращает все категории в порядке их отображения.
func Categories() []Category {
	return []Category{Sights, Restaurants, Hotels}
}

// Valid сообщает, известна ли категория.
func (c Category) Valid() bool {
	switch c {
	case Sights, Restaurants, Hotels:
		return true
	}
	return false
}

func (c Category) String() string {
	switch c {
	case Sights:
		return "sights"
	case Restaurants:
		return "restaurants"
	case Hotels:
		return "hotels"
	}
	return fmt.Sprintf("category(%d)", int64(c))
}

// CategoryHash хранит версию содержимого категории, выданную сервером.
// Данные категории в локальном хранилище актуальны, пока Value совпадает с хэшем на сервере.
type CategoryHash struct {
	Category Category
	Value    string
}
