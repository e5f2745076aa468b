package db

import (
	"encoding/json"
	"fmt"

	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
)

func encode(rec interf.Record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	return payload, nil
}

// запись другого типа под тем же идентификатором считается некорректной ссылкой
func decode(kind string, payload []byte, rec interf.Record) error {
	if kind != rec.Kind() {
		return fmt.Errorf("record is %s, expected %s: %w", kind, rec.Kind(), model.ErrInvalidInput)
	}
	if err := json.Unmarshal(payload, rec); err != nil {
		return fmt.Errorf("decode %s: %v: %w", kind, err, model.ErrInvalidInput)
	}
	return nil
}

// Хуки после коммита или отката
type hooks []func()

func (h *hooks) add(fn func()) {
	*h = append(*h, fn)
}

func (h hooks) run() {
	for _, fn := range h {
		fn()
	}
}
