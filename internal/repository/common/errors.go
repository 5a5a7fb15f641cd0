package common

import "errors"

// Общие ошибки для всех репозиториев
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrNoRowsAffected возвращается условными обновлениями,
	// когда строка уже не находится в ожидаемом состоянии.
	ErrNoRowsAffected = errors.New("no rows affected")
)
