package badger

import (
	"context"
	"testing"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPolicies_PreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedPolicy(t, store, &core.Policy{Title: "A"}, nil, nil)
	b := seedPolicy(t, store, &core.Policy{Title: "B"}, nil, nil)
	c := seedPolicy(t, store, &core.Policy{Title: "C"}, nil, nil)
	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.ReplaceImages(b.Id, []*core.Image{{Filename: "chart.png"}})
	})
	require.NoError(t, err)

	policies, err := store.Policies.GetPolicies(ctx, c.Id, a.Id, 9999, b.Id)
	require.NoError(t, err)
	require.Len(t, policies, 3)
	assert.Equal(t, []core.ID{c.Id, a.Id, b.Id}, []core.ID{policies[0].Id, policies[1].Id, policies[2].Id})
	require.Len(t, policies[2].Images, 1)
	assert.Equal(t, "chart.png", policies[2].Images[0].Filename)
	assert.Empty(t, policies[0].Images)
}

func TestListPolicies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	policies, err := store.Policies.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, policies)

	first := seedPolicy(t, store, &core.Policy{Title: "Z last alphabetically"}, nil, nil)
	second := seedPolicy(t, store, &core.Policy{Title: "A first alphabetically"}, nil, nil)

	policies, err = store.Policies.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, first.Id, policies[0].Id)
	assert.Equal(t, second.Id, policies[1].Id)
}

func TestSearchPolicies_FieldWeights(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inBody := seedPolicy(t, store, &core.Policy{
		Title:       "Visitor Management",
		TextContent: "Isolation signage must be posted at the entrance.",
	}, nil, nil)
	inTitle := seedPolicy(t, store, &core.Policy{
		Title:       "Isolation Precautions",
		TextContent: "Rooms are assigned by the charge nurse.",
	}, nil, nil)
	inDescription := seedPolicy(t, store, &core.Policy{
		Title:       "Room Assignment",
		Description: "Covers isolation rooms",
		TextContent: "Rooms are assigned by bed management.",
	}, nil, nil)

	results, err := store.Policies.SearchPolicies(ctx, []string{"isolation"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, inTitle.Id, results[0].Policy.Id)
	assert.Equal(t, inDescription.Id, results[1].Policy.Id)
	assert.Equal(t, inBody.Id, results[2].Policy.Id)

	results, err = store.Policies.SearchPolicies(ctx, []string{"isolation"}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = store.Policies.SearchPolicies(ctx, []string{"isolation"}, -1)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
