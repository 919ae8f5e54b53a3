package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and splits", "Dragon Ball", []string{"dragon", "ball"}},
		{"strips punctuation", "spider-man: no_way.home!", []string{"spider", "man", "no", "way", "home"}},
		{"drops short tokens", "a of the x hero", []string{"of", "the", "hero"}},
		{"keeps unicode letters and digits", "東京 2024 リベンジャーズ", []string{"東京", "2024", "リベンジャーズ"}},
		{"drops symbols", "100% pure & fresh", []string{"100", "pure", "fresh"}},
		{"empty input", "   ", nil},
		{
			"caps at ten tokens",
			"t1 t2 t3 t4 t5 t6 t7 t8 t9 t10 t11 t12",
			[]string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestTokenSetDeduplicates(t *testing.T) {
	set := tokenSet("dragon dragon", "dragon, ball")
	assert.Len(t, set, 2)
	_, ok := set["dragon"]
	assert.True(t, ok)
	_, ok = set["ball"]
	assert.True(t, ok)
}
