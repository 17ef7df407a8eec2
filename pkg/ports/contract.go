package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractFlow(id, subject string) domain.DoubtFlow {
	return domain.DoubtFlow{
		ID:          id,
		Name:        "Flow " + id,
		Subject:     subject,
		StartNodeID: "start",
		Nodes: []domain.FlowNode{
			{ID: "start", Type: domain.NodeTypeQuestion, Content: "Pick one", Options: []domain.FlowOption{
				{ID: "a", Label: "A", NextNodeID: "start"},
			}},
		},
	}
}

// RunFlowStoreContract runs a suite of tests to verify that a FlowStore implementation
// adheres to the defined interface contract. newStore must return an empty store.
func RunFlowStoreContract(t *testing.T, newStore func() FlowStore) {
	ctx := context.Background()

	t.Run("Add and Get", func(t *testing.T) {
		store := newStore()
		flow := contractFlow("f1", "Mathematics")
		require.NoError(t, store.Add(ctx, flow))

		loaded, err := store.Get(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, flow, loaded)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := newStore().Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Update Keeps Position", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Add(ctx, contractFlow("f1", "Mathematics")))
		require.NoError(t, store.Add(ctx, contractFlow("f2", "Science")))

		updated := contractFlow("f1", "Science")
		updated.Name = "Renamed"
		require.NoError(t, store.Update(ctx, "f1", updated))

		all, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Renamed", all[0].Name)
		assert.Equal(t, "f2", all[1].ID)
	})

	t.Run("Update Unknown Is No-op", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Add(ctx, contractFlow("f1", "Mathematics")))
		require.NoError(t, store.Update(ctx, "ghost", contractFlow("ghost", "Art")))

		all, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "f1", all[0].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Add(ctx, contractFlow("f1", "Mathematics")))
		require.NoError(t, store.Delete(ctx, "f1"))
		require.NoError(t, store.Delete(ctx, "f1"), "deleting twice is a no-op")

		_, err := store.Get(ctx, "f1")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound, "Get after Delete should return ErrFlowNotFound")
	})

	t.Run("BySubject Preserves Order", func(t *testing.T) {
		store := newStore()
		for i, subject := range []string{"Mathematics", "Science", "Mathematics"} {
			require.NoError(t, store.Add(ctx, contractFlow(fmt.Sprintf("f%d", i), subject)))
		}

		maths, err := store.BySubject(ctx, "Mathematics")
		require.NoError(t, err)
		require.Len(t, maths, 2)
		assert.Equal(t, "f0", maths[0].ID)
		assert.Equal(t, "f2", maths[1].ID)

		none, err := store.BySubject(ctx, "History")
		require.NoError(t, err)
		assert.Empty(t, none)

		subjects, err := store.Subjects(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mathematics", "Science"}, subjects)
	})

	t.Run("Copies Are Isolated", func(t *testing.T) {
		store := newStore()
		flow := contractFlow("f1", "Mathematics")
		require.NoError(t, store.Add(ctx, flow))

		flow.Nodes[0].Content = "mutated after add"
		loaded, err := store.Get(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "Pick one", loaded.Nodes[0].Content)

		loaded.Nodes[0].Options[0].Label = "mutated after get"
		again, err := store.Get(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "A", again.Nodes[0].Options[0].Label)
	})
}

// RunEventBusContract verifies that an EventBus delivers diffs to the subscribers of a session only.
func RunEventBusContract(t *testing.T, bus EventBus) {
	ctx := context.Background()
	sessionID := "contract-bus-" + time.Now().Format("20060102150405.000000000")

	ch, cancel, err := bus.Subscribe(ctx, sessionID)
	require.NoError(t, err)
	defer cancel()

	other, cancelOther, err := bus.Subscribe(ctx, sessionID+"-other")
	require.NoError(t, err)
	defer cancelOther()

	node := "r1"
	require.Eventually(t, func() bool {
		if err := bus.Publish(ctx, sessionID, &domain.SessionDiff{SessionID: sessionID, CurrentNodeID: &node}); err != nil {
			return false
		}
		select {
		case diff := <-ch:
			return diff != nil && diff.CurrentNodeID != nil && *diff.CurrentNodeID == "r1"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "subscriber should receive the published diff")

	select {
	case diff := <-other:
		t.Fatalf("unrelated subscriber received %+v", diff)
	default:
	}
}
