package llm

import (
	"testing"

	"github.com/raine/tradefeed/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAttributes_Strict(t *testing.T) {
	raw := `{"price": 80, "brand": "Nike", "productType": "sneakers", "gender": "men", "size": "9", "condition": "new", "iswtb": false, "iswts": true}`

	attrs, err := decodeAttributes(raw)
	require.NoError(t, err)
	assert.Equal(t, Attributes{
		Price:       80,
		Brand:       "Nike",
		ProductType: "sneakers",
		Gender:      storage.GenderMen,
		Size:        "9",
		Condition:   storage.ConditionNew,
		IsWTS:       true,
	}, attrs)
}

func TestDecodeAttributes_Repairs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Attributes
	}{
		{
			name: "code fence and trailing comma",
			raw:  "```json\n{\"price\": 80, \"brand\": \"Nike\", \"productType\": \"sneakers\", \"iswtb\": false, \"iswts\": true,}\n```",
			want: Attributes{Price: 80, Brand: "Nike", ProductType: "sneakers", Gender: storage.GenderUnisex, Condition: storage.ConditionNew, IsWTS: true},
		},
		{
			name: "smart quotes",
			raw:  `{“price”: 50, “brand”: “Adidas”, “productType”: “hoodie”, “iswtb”: false, “iswts”: true}`,
			want: Attributes{Price: 50, Brand: "Adidas", ProductType: "hoodie", Gender: storage.GenderUnisex, Condition: storage.ConditionNew, IsWTS: true},
		},
		{
			name: "single quotes and python literals",
			raw:  `{'price': 0, 'brand': 'Jordan', 'productType': 'sneakers', 'size': '10', 'iswtb': True, 'iswts': False}`,
			want: Attributes{Brand: "Jordan", ProductType: "sneakers", Size: "10", Gender: storage.GenderUnisex, Condition: storage.ConditionNew, IsWTB: true},
		},
		{
			name: "prose around object and unknown field",
			raw:  `Here you go: {"price": "£120", "brand": "Stone Island", "productType": "jacket", "size": 42, "condition": "Like New", "gender": "Men's", "iswtb": false, "iswts": true, "notes": "x"} hope that helps`,
			want: Attributes{Price: 120, Brand: "Stone Island", ProductType: "jacket", Size: "42", Gender: storage.GenderMen, Condition: storage.ConditionLikeNew, IsWTS: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs, err := decodeAttributes(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, attrs)
		})
	}
}

func TestDecodeAttributes_Unrecoverable(t *testing.T) {
	for _, raw := range []string{"", "sorry, I can't help with that", `{"price": 80, "brand": }`} {
		_, err := decodeAttributes(raw)
		assert.Error(t, err, raw)
	}
}

func TestToAttributes_IntentDefaults(t *testing.T) {
	// Priced but undecided posts are treated as sales
	w := wireAttributes{Price: 40}
	attrs := w.toAttributes()
	assert.True(t, attrs.IsWTS)
	assert.False(t, attrs.IsWTB)

	// Without a price the ambiguity is kept for the caller to reject
	w = wireAttributes{}
	attrs = w.toAttributes()
	assert.False(t, attrs.IsWTS)
	assert.False(t, attrs.IsWTB)

	w = wireAttributes{Price: -5, IsWTB: true}
	attrs = w.toAttributes()
	assert.Equal(t, 0.0, attrs.Price)
	assert.True(t, attrs.IsWTB)
	assert.False(t, attrs.IsWTS)
}

func TestNormalizeEnums(t *testing.T) {
	assert.Equal(t, storage.GenderWomen, normalizeGender("Ladies"))
	assert.Equal(t, storage.GenderKids, normalizeGender("GS"))
	assert.Equal(t, storage.GenderUnisex, normalizeGender("whatever"))

	assert.Equal(t, storage.ConditionLikeNew, normalizeCondition("like-new"))
	assert.Equal(t, storage.ConditionUsed, normalizeCondition("Pre Owned"))
	assert.Equal(t, storage.ConditionPoor, normalizeCondition("damaged"))
	assert.Equal(t, storage.ConditionNew, normalizeCondition(""))
}
