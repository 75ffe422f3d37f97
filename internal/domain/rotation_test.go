package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextAgent(t *testing.T) {
	eligible := []string{"A", "B", "C"}

	cases := []struct {
		name string
		last string
		want string
	}{
		{"empty cursor starts at first", "", "A"},
		{"advances to next", "A", "B"},
		{"advances from middle", "B", "C"},
		{"wraps past end", "C", "A"},
		{"cursor agent no longer eligible", "Z", "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextAgent(tc.last, eligible)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("skips disabled agent after cursor", func(t *testing.T) {
		got, err := NextAgent("A", []string{"A", "C"})
		require.NoError(t, err)
		require.Equal(t, "C", got)
	})

	t.Run("single agent always chosen", func(t *testing.T) {
		got, err := NextAgent("A", []string{"A"})
		require.NoError(t, err)
		require.Equal(t, "A", got)
	})

	t.Run("empty eligible list", func(t *testing.T) {
		_, err := NextAgent("A", nil)
		require.True(t, errors.Is(err, ErrNoEligibleAgents))
	})
}

func TestNextAgent_Fairness(t *testing.T) {
	eligible := []string{"a1", "a2", "a3", "a4"}
	counts := map[string]int{}
	last := ""
	const leads = 23
	for i := 0; i < leads; i++ {
		next, err := NextAgent(last, eligible)
		require.NoError(t, err)
		counts[next]++
		last = next
	}
	for _, id := range eligible {
		n := counts[id]
		require.True(t, n == leads/len(eligible) || n == leads/len(eligible)+1, "agent %s got %d", id, n)
	}
}
