package products

import (
	"errors"
	"strings"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if !p.Line.Valid() {
		return errors.New("product line must be grocery or bakery")
	}
	return nil
}
