package products

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/masterdata/shared"
	internalShared "github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
)

type memoryRepository struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{products: make(map[int64]Product)}
}

func (m *memoryRepository) List(_ context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var result []Product
	for _, p := range m.products {
		if filters.Line != "" && string(p.Line) != filters.Line {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *memoryRepository) Get(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, internalShared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepository) Create(_ context.Context, product Product) (Product, error) {
	m.nextID++
	product.ID = m.nextID
	m.products[product.ID] = product
	return product, nil
}

func (m *memoryRepository) Update(_ context.Context, id int64, product Product) error {
	if _, ok := m.products[id]; !ok {
		return internalShared.ErrNotFound
	}
	product.ID = id
	m.products[id] = product
	return nil
}

func TestCreateValidatesLine(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "Flour 1kg", Line: Line("dairy")})
	require.Error(t, err)

	created, err := svc.Create(ctx, Product{Name: "Flour 1kg", Line: LineBakery})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestListFiltersByLine(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{Name: "Rice 5kg", Line: LineGrocery})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Product{Name: "Baguette", Line: LineBakery})
	require.NoError(t, err)

	result, total, err := svc.List(ctx, shared.ListFilters{Line: string(LineBakery)})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Baguette", result[0].Name)
}

func TestUpdateMissingProduct(t *testing.T) {
	svc := NewService(newMemoryRepository())

	err := svc.Update(context.Background(), 42, Product{Name: "Rice", Line: LineGrocery})
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}
