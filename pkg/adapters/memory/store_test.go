package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/doubtflow/pkg/adapters/memory"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunFlowStoreContract(t, func() ports.FlowStore {
		return memory.NewStore()
	})
}

func TestMemoryStore_DuplicateIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(
		domain.DoubtFlow{ID: "dup", Name: "first"},
		domain.DoubtFlow{ID: "dup", Name: "second"},
	)

	got, err := store.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name, "lookups return the first match")

	require.NoError(t, store.Delete(ctx, "dup"))
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStore_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Add(ctx, domain.DoubtFlow{ID: fmt.Sprintf("f%d", i), Subject: "Mathematics"})
		}(i)
	}
	wg.Wait()

	all, err := store.BySubject(ctx, "Mathematics")
	require.NoError(t, err)
	assert.Len(t, all, 50)
}
