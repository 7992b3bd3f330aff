package model

import "time"

type ChatGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,min=1,max=80"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
