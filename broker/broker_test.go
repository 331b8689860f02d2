package broker

import (
	"testing"

	"github.com/rkulagin/autolot/money"
	"github.com/stretchr/testify/assert"
)

func TestIsBond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class InstrumentClass
		want  bool
	}{
		{"share", ClassShare, false},
		{"etf", ClassEtf, false},
		{"bond", ClassBond, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			i := Instrument{Ticker: "X", Class: tt.class}
			assert.Equal(t, tt.want, i.IsBond())
		})
	}
}

func TestBondCarriesNominal(t *testing.T) {
	b := Instrument{
		Ticker:          "SU26248RMFS3",
		Class:           ClassBond,
		Nominal:         money.Value{Units: 1000},
		AccruedInterest: money.Value{Units: 12, Nano: 340000000},
	}
	assert.Equal(t, 1000.00, b.Nominal.Float())
	assert.Equal(t, 12.34, b.AccruedInterest.Float())
}
