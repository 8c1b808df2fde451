package repository

import "errors"

var (
	// ErrNotFound - запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite - условное обновление не затронуло ни одной строки
	ErrStaleWrite = errors.New("stale write")
)

const pgUniqueViolationCode = "23505"
