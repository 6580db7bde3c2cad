package warehouses

import (
	"errors"
	"strings"
)

func (s *Service) validate(w Warehouse) error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("warehouse name is required")
	}
	return nil
}
