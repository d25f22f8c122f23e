// Package model содержит доменные сущности витрины заказов.
package model

import "time"

// User представляет учётную запись пользователя.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// UserProfile описывает профиль программы лояльности пользователя.
type UserProfile struct {
	UserID       int64
	DisplayName  string
	Email        string
	RewardPoints int64
	CreatedAt    time.Time
}

// MenuItem описывает позицию меню. Каталог меню неизменяем на стороне сервиса,
// цена хранится в копейках.
type MenuItem struct {
	ID         int64
	Name       string
	PriceCents int64
	Image      string
}

// CartLine — строка корзины. Строки наград имеют нулевую цену и положительную
// стоимость в баллах, зафиксированную в момент обмена. JSON-теги задают форму
// снимка строки в документе заказа.
type CartLine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price"`
	Image      string `json:"image"`
	Quantity   int    `json:"quantity"`
	IsReward   bool   `json:"isReward,omitempty"`
	PointsCost int64  `json:"pointsCost,omitempty"`
}

// RewardDefinition описывает награду программы лояльности. Награды задаются
// системой; LinkedMenuID ссылается на позицию меню ради её изображения.
type RewardDefinition struct {
	ID           string
	Name         string
	Cost         int64
	LinkedMenuID int64
}

// RewardOffer — награда вместе с изображением, взятым из привязанной позиции меню.
type RewardOffer struct {
	ID    string
	Name  string
	Cost  int64
	Image string
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusGuestPending OrderStatus = "guest_pending"
	OrderStatusCompleted    OrderStatus = "completed"
)

// Order описывает оформленный заказ. UserID равен nil для гостевого заказа,
// пока тот не привязан к учётной записи.
type Order struct {
	ID           int64
	UserID       *int64
	Items        []CartLine
	TotalCents   int64
	PointsEarned int64
	Status       OrderStatus
	CreatedAt    time.Time
}
