// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
)

// Field — проверяемое поле формы оформления заказа.
type Field struct {
	Name  string
	Value string
}

// FirstMissing возвращает имя первого обязательного поля, пустого после
// обрезки пробелов, или пустую строку, если все поля заполнены.
func FirstMissing(fields []Field) string {
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			return f.Name
		}
	}
	return ""
}

// IsValidEmail проверяет синтаксическую корректность email-адреса.
func IsValidEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Address == strings.TrimSpace(s)
}
