package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dex-trade-stream/internal/domain"
)

func TestResolvePrograms(t *testing.T) {
	tests := []struct {
		name     string
		programs string
		dex      string
		want     []string
	}{
		{
			name: "aliases in priority order",
			dex:  "orca, Raydium,jupiter",
			want: []string{domain.JupiterV6, domain.RaydiumAMMV4, domain.OrcaWhirlpool},
		},
		{
			name:     "explicit ids merged and deduplicated",
			programs: "Custom111, " + domain.Phoenix,
			dex:      "phoenix,unknown",
			want:     []string{domain.Phoenix, "Custom111"},
		},
		{
			name: "nothing",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvePrograms(tt.programs, tt.dex))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092 "))
	assert.Nil(t, splitList(""))
}
