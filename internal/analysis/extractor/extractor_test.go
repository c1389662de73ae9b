package extractor

import (
	"testing"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *Extractor {
	return New(model.ExtractorConfig{})
}

func TestExtractNamesAndPrices(t *testing.T) {
	items, err := newTestExtractor().Extract("Grilled Chicken Breast - $14\nVegan Buddha Bowl - $12")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "Grilled Chicken Breast", items[0].Name)
	assert.Equal(t, "$14", items[0].Price)
	assert.Equal(t, "Grilled Chicken Breast - $14", items[0].RawText)

	assert.Equal(t, "2", items[1].ID)
	assert.Equal(t, "Vegan Buddha Bowl", items[1].Name)
	assert.Equal(t, "$12", items[1].Price)
}

func TestExtractEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t\n", "----\n***\n...", "=\n-"} {
		_, err := newTestExtractor().Extract(in)
		assert.ErrorIs(t, err, errx.ErrEmptyExtraction, "input %q", in)
	}
}

func TestExtractSkipsNoiseAndKeepsOrder(t *testing.T) {
	raw := "\r\nMargherita Pizza\r\n------\r\n\r\n  Caesar   Salad  \r\n!!\r\nTiramisu"
	items, err := newTestExtractor().Extract(raw)
	require.NoError(t, err)
	require.Len(t, items, 3)

	names := []string{items[0].Name, items[1].Name, items[2].Name}
	assert.Equal(t, []string{"Margherita Pizza", "Caesar Salad", "Tiramisu"}, names)
	assert.Equal(t, []string{"1", "2", "3"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestExtractDoesNotInventFields(t *testing.T) {
	items, err := newTestExtractor().Extract("Chef's Special")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Price)
	assert.Empty(t, items[0].Category)
	assert.Empty(t, items[0].Description)
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		unit  string
		name  string
		desc  string
		price string
	}{
		{"Pad Thai - rice noodles, tamarind, peanuts - $13.50", "Pad Thai", "rice noodles, tamarind, peanuts", "$13.50"},
		{"Tom Yum Goong 180 บาท", "Tom Yum Goong", "", "180 บาท"},
		{"Crème brûlée ........ 9,50 €", "Crème brûlée", "", "9,50 €"},
		{"Falafel Wrap: chickpeas, tahini", "Falafel Wrap", "chickpeas, tahini", ""},
		{"$14", "$14", "", ""},
		{"Table for 2", "Table for 2", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			got := parseUnit(tt.unit)
			assert.Equal(t, tt.name, got.Name)
			assert.Equal(t, tt.desc, got.Description)
			assert.Equal(t, tt.price, got.Price)
			assert.Equal(t, tt.unit, got.RawText)
		})
	}
}

func TestExtractMaxItems(t *testing.T) {
	e := New(model.ExtractorConfig{MaxItems: 2})
	items, err := e.Extract("Soup\nSalad\nSteak\nPie")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestExtractFromDocument(t *testing.T) {
	doc := `<!DOCTYPE html>
<html>
<head><title>Luigi's</title><style>.menu{color:red}</style></head>
<body>
  <nav><a href="/">Home</a><a href="/about">About us</a></nav>
  <h2>Mains</h2>
  <ul class="menu">
    <li><span>Lasagna</span> - <span>$16</span></li>
    <li><span>Eggplant Parmesan</span> <em>$15</em></li>
  </ul>
  <script>var tracking = "Fake Dish $99";</script>
  <footer>© 2024 Luigi's</footer>
</body>
</html>`

	items, err := newTestExtractor().ExtractFromDocument(doc)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Mains", items[0].Name)
	assert.Equal(t, "Lasagna", items[1].Name)
	assert.Equal(t, "$16", items[1].Price)
	assert.Equal(t, "Eggplant Parmesan", items[2].Name)
	assert.Equal(t, "$15", items[2].Price)
	for _, it := range items {
		assert.NotContains(t, it.Name, "Fake Dish")
		assert.NotContains(t, it.Name, "Home")
	}
}

func TestExtractFromDocumentPlainText(t *testing.T) {
	items, err := newTestExtractor().ExtractFromDocument("Miso Soup - $5")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Miso Soup", items[0].Name)
}

func TestExtractFromDocumentWithoutMenu(t *testing.T) {
	_, err := newTestExtractor().ExtractFromDocument("<html><body><script>x()</script></body></html>")
	assert.ErrorIs(t, err, errx.ErrEmptyExtraction)
}
