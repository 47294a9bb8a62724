package extract

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceradar/pkg/utils"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected float64
		wantErr  bool
	}{
		{"plain integer", "12", 12, false},
		{"dot decimal", "12.50", 12.5, false},
		{"comma decimal", "12,50", 12.5, false},
		{"comma grouping", "1,234", 1234, false},
		{"dot grouping comma decimal", "1.234,56", 1234.56, false},
		{"comma grouping dot decimal", "12,345.67", 12345.67, false},
		{"repeated grouping", "1,234,567", 1234567, false},
		{"empty", "", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecimal(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}

func TestFindPrice(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
		wantErr  bool
	}{
		{"halfwidth yen", "农夫山泉 ¥2.5 起送", 2.5, false},
		{"fullwidth yen", "红牛 ￥6.00", 6, false},
		{"yen with space", "¥ 12.90", 12.9, false},
		{"no marker", "农夫山泉 2.5元", 0, true},
		{"marker without number", "价格 ¥", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindPrice(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}

func TestFindDistance(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
		wantErr  bool
	}{
		{"meters", "距离 500m", 500, false},
		{"kilometers", "1.2km", 1200, false},
		{"chinese km", "2公里", 2000, false},
		{"chinese meters", "800米", 800, false},
		{"no distance", "月售1000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindDistance(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// resultsPage builds a search results fixture. Fields inside a card are
// separated by newline text nodes, as the rendered storefront DOM is.
func resultsPage(cards ...string) string {
	page := `<html><body><div class="search-results">`
	for _, card := range cards {
		page += fmt.Sprintf("<div class=\"shopItem-wrapper\">\n%s\n</div>", card)
	}
	page += `</div></body></html>`
	return page
}

func TestParseCards(t *testing.T) {
	now := time.Now()

	t.Run("extracts store cards with prices", func(t *testing.T) {
		html := resultsPage(
			"全家便利店\n¥2.50\n500m",
			"罗森便利店\n￥3.00\n1.2km",
			"7-11便利店\n¥2.80\n300米",
		)

		results, err := ParseCards(html, "农夫山泉550ml", "meituan", now)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "全家便利店", results[0].StoreName)
		assert.InDelta(t, 2.5, results[0].Price, 0.001)
		assert.Equal(t, 500, results[0].DistanceMeter)
		assert.Equal(t, 1200, results[1].DistanceMeter)
		assert.Equal(t, "meituan", results[0].Platform)
		assert.Equal(t, "农夫山泉550ml", results[0].ProductName)
		assert.True(t, results[0].InStock)
		assert.Equal(t, now, results[0].CrawledAt)
	})

	t.Run("no cards is empty result", func(t *testing.T) {
		_, err := ParseCards("<html><body><p>加载中...</p></body></html>", "红牛", "meituan", now)
		ee, ok := utils.AsExtractionError(err)
		require.True(t, ok)
		assert.Equal(t, utils.ExtractEmptyResult, ee.Kind)
	})

	t.Run("cards without prices is layout mismatch", func(t *testing.T) {
		html := resultsPage(
			"全家便利店\n月售100",
			"罗森便利店\n月售200",
			"7-11便利店\n月售300",
		)
		_, err := ParseCards(html, "红牛", "meituan", now)
		ee, ok := utils.AsExtractionError(err)
		require.True(t, ok)
		assert.Equal(t, utils.ExtractLayoutMismatch, ee.Kind)
	})

	t.Run("cards without a price marker are skipped", func(t *testing.T) {
		html := resultsPage(
			"全家便利店\n月售100",
			"罗森便利店\n¥3.00",
			"7-11便利店\n¥2.80",
		)
		results, err := ParseCards(html, "可口可乐330ml", "eleme", now)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "罗森便利店", results[0].StoreName)
	})

	t.Run("caps the number of cards", func(t *testing.T) {
		var cards []string
		for i := 0; i < 30; i++ {
			cards = append(cards, fmt.Sprintf("店铺%d\n¥%d.00", i, i+1))
		}
		results, err := ParseCards(resultsPage(cards...), "奥利奥饼干", "meituan", now)
		require.NoError(t, err)
		assert.Len(t, results, maxCards)
	})
}
