// Package validation выполняет привязку и проверку входящих JSON-запросов.
// Форма удалённых данных проверяется на границе API, а не внутри бизнес-логики.
package validation

import (
	"encoding/json"
	"errors"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New возвращает настроенный валидатор для тегов validate в структурах запросов.
func New() *validatorv10.Validate {
	return validatorv10.New()
}

// BindJSON декодирует тело запроса в out и проверяет его по тегам validate.
// При ошибке пишет ответ 400 и возвращает ошибку — обработчику остаётся выйти.
func BindJSON(w http.ResponseWriter, r *http.Request, out any, v *validatorv10.Validate) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, "invalid_request_body", nil)
		return err
	}

	if err := v.Struct(out); err != nil {
		writeError(w, "validation_failed", errorsToMap(err))
		return err
	}

	return nil
}

func errorsToMap(err error) map[string]string {
	fields := map[string]string{}

	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
	} else {
		fields["error"] = err.Error()
	}

	return fields
}

func writeError(w http.ResponseWriter, msg string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	resp := map[string]any{"error": msg}
	if len(fields) > 0 {
		resp["fields"] = fields
	}
	_ = json.NewEncoder(w).Encode(resp)
}
