package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequential_Format(t *testing.T) {
	g := NewSequential("", "")

	assert.Equal(t, "ACC-000001", g.NextAccountNumber())
	assert.Equal(t, "ACC-000002", g.NextAccountNumber())
	assert.Equal(t, "TXN-00000001", g.NextTransactionID())
}

func TestSequential_OrderMatchesCreation(t *testing.T) {
	g := NewSequential("ACC", "TXN")
	a := g.NextAccountNumber()
	b := g.NextAccountNumber()

	assert.Less(t, a, b)
}

func TestUUID_Prefix(t *testing.T) {
	g := NewUUID("ACC", "")

	assert.True(t, strings.HasPrefix(g.NextAccountNumber(), "ACC-"))
	assert.Len(t, g.NextTransactionID(), 36)
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New("snowflake", "", "")
	assert.Error(t, err)
}

func TestGenerators_ConcurrentUniqueness(t *testing.T) {
	for _, strategy := range []Strategy{StrategySequential, StrategyUUID} {
		t.Run(string(strategy), func(t *testing.T) {
			g, err := New(strategy, "ACC", "TXN")
			require.NoError(t, err)

			const workers, perWorker = 16, 250
			var (
				mu   sync.Mutex
				seen = make(map[string]struct{}, workers*perWorker)
				wg   sync.WaitGroup
			)
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						id := g.NextTransactionID()
						mu.Lock()
						seen[id] = struct{}{}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Len(t, seen, workers*perWorker)
		})
	}
}
