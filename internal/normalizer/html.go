package normalizer

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"toshima-parking-finder/internal/models"
)

// Elements that belong to the section under a facility heading
var sectionTags = map[string]bool{
	"p": true, "ul": true, "table": true, "div": true, "dl": true, "dd": true, "dt": true,
}

// ParsePage runs the full pipeline over one ward page
func ParsePage(r io.Reader) ([]models.FacilityRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return ParseDocument(doc), nil
}

// ParseDocument extracts facilities from the h3 sections of a page, fills missing addresses
// and hours from the text around each name, and assembles the published records.
// Pages without facility headings fall back to table rows, then to plain lines.
func ParseDocument(doc *goquery.Document) []models.FacilityRecord {
	pageText := doc.Text()

	facilities := ExtractStructured(doc)
	if len(facilities) == 0 {
		facilities = ExtractTableRows(doc)
	}
	if len(facilities) == 0 {
		facilities = ExtractFromText(pageText)
	}

	FillFromPageText(facilities, pageText)
	return AssembleAll(facilities)
}

// ExtractStructured reads one facility per valid h3 heading from the elements that follow it
func ExtractStructured(doc *goquery.Document) []Facility {
	var facilities []Facility

	doc.Find("h3").Each(func(_ int, h3 *goquery.Selection) {
		name := strippedText(h3)
		if !IsValidFacilityName(name) {
			return
		}

		f := Facility{Name: name}
		var sectionText strings.Builder

		for el := h3.Next(); el.Length() > 0 && sectionTags[goquery.NodeName(el)]; el = el.Next() {
			text := el.Text()
			sectionText.WriteString(" ")
			sectionText.WriteString(text)

			switch goquery.NodeName(el) {
			case "p", "div":
				f.fillFromParagraph(text)
			case "ul":
				el.Find("li").Each(func(_ int, li *goquery.Selection) {
					f.fillFromListItem(strippedText(li))
				})
			case "table":
				f.fillFromFeeTable(el)
				f.fillFromKeyValueTable(el)
			}
		}

		if sectionText.Len() > 0 {
			f.fillFromSection(sectionText.String())
		}

		if Retain(f) {
			facilities = append(facilities, f)
		}
	})

	return facilities
}

func (f *Facility) fillFromParagraph(text string) {
	for _, line := range nonEmptyLines(text) {
		if f.Address == "" {
			f.setAddress(ExtractAddress(line))
		}
		if f.Phone == "" {
			f.setPhone(ExtractPhone(line))
		}
	}
}

func (f *Facility) fillFromListItem(text string) {
	if f.Address == "" {
		f.setAddress(ExtractAddress(text))
	}
	if f.Phone == "" {
		f.setPhone(ExtractPhone(text))
	}
	f.setCapacity(ExtractCapacity(text))

	// only explicit wording counts inside a list
	if support := DetermineVehicleSupport(text, ""); support != models.VehicleSupportUnknown {
		f.setVehicleSupport(support)
	}

	if f.Hours == "" {
		f.setHours(ExtractHours(text))
	}
}

// fillFromFeeTable handles tables whose header has a coin-fee column and an hours column
func (f *Facility) fillFromFeeTable(table *goquery.Selection) {
	rows := table.Find("tr")

	var header *goquery.Selection
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		texts := cellTexts(row)
		joined := strings.Join(texts, " ")
		if strings.Contains(joined, "時間利用") || strings.Contains(joined, "コイン式") {
			header = row
			return false
		}
		return true
	})
	if header == nil {
		return
	}

	coinCol, hoursCol := -1, -1
	for i, text := range cellTexts(header) {
		if strings.Contains(text, "時間利用") || strings.Contains(text, "コイン式") {
			coinCol = i
		} else if strings.Contains(text, "利用時間") {
			hoursCol = i
		}
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) <= max(coinCol, hoursCol) {
			return
		}

		if coinCol >= 0 {
			coin := cells[coinCol]
			if coin != "" && coin != "なし" && strings.Contains(coin, "円") && f.Fee == "" {
				f.setFee(CleanText(coin))
			}
		}

		if hoursCol >= 0 {
			hours := cells[hoursCol]
			if hours != "" && hours != "利用時間" && f.Hours == "" {
				f.setHours(ExtractHours(hours))
			}
		}
	})
}

// fillFromKeyValueTable handles tables laid out as label/value rows
func (f *Facility) fillFromKeyValueTable(table *goquery.Selection) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) < 2 {
			return
		}
		key, value := cells[0], cells[1]

		switch {
		case strings.Contains(key, "住所") && f.Address == "":
			f.setAddress(ExtractAddress(value))
		case strings.Contains(key, "電話") || strings.Contains(key, "TEL"):
			f.setPhone(firstPhone(barePhonePatterns, value))
		case strings.Contains(key, "利用時間") || strings.Contains(key, "営業時間"):
			f.setHours(ExtractHours(value))
		case strings.Contains(key, "料金"):
			f.setFee(ExtractCoinFee(value))
		case strings.Contains(key, "台数") || strings.Contains(key, "収容"):
			f.setCapacity(ExtractCapacity(value))
		case strings.Contains(key, "原付") || strings.Contains(key, "バイク"):
			f.setVehicleSupport(DetermineVehicleSupport(value, ""))
		}
	})
}

// FillFromPageText looks for a missing address or hours in the page text that follows
// each facility name
func FillFromPageText(facilities []Facility, pageText string) {
	for i := range facilities {
		f := &facilities[i]
		if f.Address != "" && f.Hours != "" {
			continue
		}

		nearby := nameContext(f.Name, pageText)
		if nearby == "" {
			continue
		}

		if f.Address == "" {
			f.setAddress(ExtractAddress(nearby))
		}

		if f.Hours == "" {
			if strings.Contains(nearby, models.HoursAllDay) {
				f.setHours(models.HoursAllDay)
				continue
			}
			for _, re := range contextHoursPatterns {
				if m := re.FindString(nearby); m != "" {
					f.setHours(m)
					break
				}
			}
		}
	}
}

// nameContext returns the rest of the line starting at the facility name plus up to five
// following lines of the page text
func nameContext(name, pageText string) string {
	if name == "" {
		return ""
	}
	re, err := regexp.Compile(regexp.QuoteMeta(name) + `[^\n]*(?:\n[^\n]*){0,5}`)
	if err != nil {
		return ""
	}
	return re.FindString(pageText)
}

// ExtractTableRows reads listing tables where each row is one facility and the first cell
// is its name
func ExtractTableRows(doc *goquery.Document) []Facility {
	var facilities []Facility

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		headers := strings.Join(cellTexts(rows.First()), " ")
		if !containsAny(headers, listingTableHeaders) {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := cellTexts(row)
			if len(cells) < 2 {
				return
			}

			var f Facility
			for i, text := range cells {
				switch {
				case i == 0 && IsValidFacilityName(text):
					f.Name = text
				case strings.ContainsAny(text, "区町") || strings.Contains(text, "丁目"):
					f.setAddress(text)
				case simplePhonePattern.MatchString(text):
					f.setPhone(ExtractPhone(text))
				case isHoursCell(text):
					f.setHours(text)
				case strings.Contains(text, "円"):
					f.setFee(ExtractCoinFee(text))
				case capacityPattern.MatchString(text):
					f.setCapacity(ExtractCapacity(text))
				}
			}

			if f.Name != "" {
				facilities = append(facilities, f)
			}
		})
	})

	return facilities
}

var listingTableHeaders = []string{"駐輪", "名称", "住所", "電話", "料金", "台数"}

var hoursCellExclusions = []string{"営業時間", "受付時間", "問い合わせ時間", "連絡時間"}

func isHoursCell(text string) bool {
	if !strings.Contains(text, "時") && !strings.Contains(text, "深夜") {
		return false
	}
	if strings.Contains(text, "円") || strings.Contains(text, "台") {
		return false
	}
	return !containsAny(text, hoursCellExclusions)
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.Find("th, td")
	texts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		texts = append(texts, strippedText(cell))
	})
	return texts
}

// strippedText joins the trimmed text nodes under a selection without separators
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
