package extract

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// cardSelectors is the ladder of selectors tried against the search
// results page, most specific first. The storefront obfuscates class
// names, so matches are by substring.
var cardSelectors = []string{
	`[class*="shopItem"]`,
	`[class*="poi"]`,
	`[class*="merchant"]`,
	`[class*="store"]`,
	`[class*="goods"]`,
	`[class*="product"]`,
	`[class*="card"]`,
}

const maxCards = 15

var (
	priceRe    = regexp.MustCompile(`[¥￥]\s*([0-9][0-9.,]*)`)
	distanceRe = regexp.MustCompile(`(?i)([0-9]+[0-9.,]*)\s*(km|m|公里|米)`)
)

// ParseCards extracts price results from a search results page. It
// fails with EmptyResult when no result cards are found, and with
// LayoutMismatch when cards are present but none yields a valid price —
// a malformed number is never passed through.
func ParseCards(html string, query models.ProductQuery, platform string, crawledAt time.Time) ([]models.Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to parse HTML: %v", err))
	}

	var cards *goquery.Selection
	for _, selector := range cardSelectors {
		found := doc.Find(selector)
		if found.Length() > 2 {
			cards = found
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		return nil, utils.NewExtractionError(utils.ExtractEmptyResult, fmt.Sprintf("no result cards for query %q", query))
	}

	var results []models.Result
	cards.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxCards {
			return false
		}

		text := s.Text()
		lines := nonEmptyLines(text)
		if len(lines) == 0 {
			return true
		}

		storeName := lines[0]
		if len([]rune(storeName)) > 30 {
			storeName = string([]rune(storeName)[:30])
		}

		price, err := FindPrice(text)
		if err != nil {
			return true
		}

		distance, _ := FindDistance(text)

		results = append(results, models.Result{
			Platform:      platform,
			StoreID:       storeID(platform, i, storeName),
			StoreName:     storeName,
			DistanceMeter: distance,
			ProductName:   string(query),
			Price:         price,
			OriginalPrice: price,
			InStock:       true,
			CrawledAt:     crawledAt,
		})
		return true
	})

	if len(results) == 0 {
		return nil, utils.NewExtractionError(utils.ExtractLayoutMismatch,
			fmt.Sprintf("%d result cards but no parseable price for query %q", cards.Length(), query))
	}

	return results, nil
}

// FindPrice locates the first currency-marked amount in the card text.
func FindPrice(text string) (float64, error) {
	match := priceRe.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("no price marker in text")
	}
	price, err := parseDecimal(match[1])
	if err != nil {
		return 0, fmt.Errorf("malformed price %q: %w", match[1], err)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %q", match[1])
	}
	return price, nil
}

// FindDistance locates the first unit-tagged distance in the card text
// and returns it in meters.
func FindDistance(text string) (int, error) {
	match := distanceRe.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("no distance in text")
	}
	value, err := parseDecimal(match[1])
	if err != nil {
		return 0, fmt.Errorf("malformed distance %q: %w", match[1], err)
	}
	unit := strings.ToLower(match[2])
	if unit == "km" || unit == "公里" {
		return int(value * 1000), nil
	}
	return int(value), nil
}

// parseDecimal parses a decimal number tolerating locale-specific
// separators: "12.50", "12,50", "1,234.56" and "1.234,56" all parse.
// Anything ambiguous or malformed is an error, never a wrong number.
func parseDecimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the later separator is the decimal point.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}

	if strings.Count(s, ".") > 1 {
		return 0, fmt.Errorf("multiple decimal points in %q", raw)
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// normalizeSingleSeparator decides whether the only separator kind in s
// acts as a thousands or a decimal separator. Repeated separators, or a
// single one followed by exactly three digits in a longer number, are
// treated as grouping.
func normalizeSingleSeparator(s, sep string) string {
	parts := strings.Split(s, sep)
	if len(parts) > 2 {
		// "1,234,567" style grouping
		return strings.Join(parts, "")
	}
	if len(parts[1]) == 3 && len(parts[0]) > 0 && len(parts[0]) <= 3 && sep == "," {
		// "1,234" — comma grouping
		return parts[0] + parts[1]
	}
	return parts[0] + "." + parts[1]
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func storeID(platform string, index int, storeName string) string {
	h := fnv.New32a()
	h.Write([]byte(storeName))
	return fmt.Sprintf("%s_%d_%04d", platform, index, h.Sum32()%10000)
}
