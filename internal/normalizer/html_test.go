package normalizer

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"toshima-parking-finder/internal/models"
)

const wardPageHTML = `<html><head><title>駐輪場のご案内</title></head><body>
<h2>駐輪場一覧</h2>
<h3>池袋駅東第二自転車駐車場</h3>
<p>住所：豊島区東池袋1-7-1<br>
電話：03-3981-1111</p>
<ul>
<li>収容台数：自転車500台</li>
<li>原付は利用できません</li>
</ul>
<table>
<tr><th>区分</th><th>時間利用（コイン式）</th><th>利用時間</th></tr>
<tr><td>自転車</td><td>最初の2時間は無料、以降6時間ごとに100円</td><td>午前6時から深夜1時</td></tr>
</table>
<h3>お問い合わせ</h3>
<p>土木管理課 電話：03-0000-0000</p>
<h3>雑司が谷駅自転車駐車場</h3>
<p>豊島区雑司が谷2-1</p>
<table>
<tr><th>料金</th><td>定期利用 一般 1,800円</td></tr>
</table>
</body></html>`

func mustDocument(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

func TestParsePage(t *testing.T) {
	records, err := ParsePage(strings.NewReader(wardPageHTML))
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}

	want := []models.FacilityRecord{
		{
			Name:           "池袋駅東第二自転車駐車場",
			Address:        "豊島区東池袋1-7-1",
			Phone:          "03-3981-1111",
			Hours:          "午前6時から深夜1時",
			Fee:            "最初の2時間は無料、以降6時間ごとに100円",
			VehicleSupport: models.VehicleSupportUnavailable,
			Capacity:       "500台",
		},
		{
			Name:    "雑司が谷駅自転車駐車場",
			Address: "豊島区雑司が谷2-1",
			Fee:     models.FeeSubscriptionOnly,
		},
	}

	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestExtractStructuredSkipsNonFacilityHeadings(t *testing.T) {
	facilities := ExtractStructured(mustDocument(t, wardPageHTML))
	for _, f := range facilities {
		if f.Name == "お問い合わせ" {
			t.Errorf("heading %q should not become a facility", f.Name)
		}
		if f.Phone == "03-0000-0000" {
			t.Errorf("facility %q picked up the inquiry phone number", f.Name)
		}
	}
}

func TestExtractStructuredDropsEmptySections(t *testing.T) {
	page := `<html><body><h3>目白駅自転車駐車場</h3><h3>駒込駅自転車駐車場</h3><p>豊島区駒込1-1-1</p></body></html>`

	facilities := ExtractStructured(mustDocument(t, page))
	if len(facilities) != 1 {
		t.Fatalf("expected 1 facility, got %d: %+v", len(facilities), facilities)
	}
	if facilities[0].Name != "駒込駅自転車駐車場" {
		t.Errorf("Name = %q, want 駒込駅自転車駐車場", facilities[0].Name)
	}
}

func TestFillFromPageText(t *testing.T) {
	facilities := []Facility{
		{Name: "要町駅自転車駐車場", Fee: "2時間100円"},
		{Name: "千川駅自転車駐車場", Address: "豊島区千川1-1-1", Hours: models.HoursAllDay},
	}
	pageText := "ご案内\n要町駅自転車駐車場\n豊島区要町1-1-1\n午前6時から深夜1時30分まで\n次の施設"

	FillFromPageText(facilities, pageText)

	if facilities[0].Address != "豊島区要町1-1-1" {
		t.Errorf("Address = %q, want 豊島区要町1-1-1", facilities[0].Address)
	}
	if facilities[0].Hours != "午前6時から深夜1時30分" {
		t.Errorf("Hours = %q, want 午前6時から深夜1時30分", facilities[0].Hours)
	}
	if facilities[1].Address != "豊島区千川1-1-1" || facilities[1].Hours != models.HoursAllDay {
		t.Errorf("complete facility was modified: %+v", facilities[1])
	}
}

func TestFillFromPageTextAllDay(t *testing.T) {
	facilities := []Facility{{Name: "東池袋駐輪場", Address: "豊島区東池袋4-4-4"}}
	FillFromPageText(facilities, "東池袋駐輪場\n24時間利用可")

	if facilities[0].Hours != models.HoursAllDay {
		t.Errorf("Hours = %q, want %q", facilities[0].Hours, models.HoursAllDay)
	}
}

func TestNameContextLimitsFollowingLines(t *testing.T) {
	text := "A駐輪場 説明\n1\n2\n3\n4\n5\n6\n7"
	got := nameContext("A駐輪場", text)
	want := "A駐輪場 説明\n1\n2\n3\n4\n5"
	if got != want {
		t.Errorf("nameContext() = %q, want %q", got, want)
	}

	if got := nameContext("B駐輪場", text); got != "" {
		t.Errorf("nameContext() for missing name = %q, want empty", got)
	}
}

const listingTableHTML = `<html><body>
<table>
<tr><th>名称</th><th>住所</th><th>電話</th><th>料金</th></tr>
<tr><td>千川駅自転車駐車場</td><td>豊島区千川1-1-1</td><td>03-1111-2222</td><td>2時間100円</td></tr>
<tr><td>注意事項</td><td>-</td></tr>
</table>
</body></html>`

func TestExtractTableRows(t *testing.T) {
	facilities := ExtractTableRows(mustDocument(t, listingTableHTML))
	if len(facilities) != 1 {
		t.Fatalf("expected 1 facility, got %d: %+v", len(facilities), facilities)
	}

	want := Facility{
		Name:    "千川駅自転車駐車場",
		Address: "豊島区千川1-1-1",
		Phone:   "03-1111-2222",
		Fee:     "2時間100円",
	}
	if facilities[0] != want {
		t.Errorf("facility = %+v, want %+v", facilities[0], want)
	}
}

func TestParsePageFallsBackToTableRows(t *testing.T) {
	records, err := ParsePage(strings.NewReader(listingTableHTML))
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if len(records) != 1 || records[0].Name != "千川駅自転車駐車場" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParsePageFallsBackToText(t *testing.T) {
	page := `<html><body><div>
目白駅自転車駐車場
豊島区目白3-3-3
電話 03-5555-6666
</div></body></html>`

	records, err := ParsePage(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].Address != "豊島区目白3-3-3" || records[0].Phone != "03-5555-6666" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestIsHoursCell(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"午前6時から深夜1時", true},
		{"深夜まで", true},
		{"2時間100円", false},
		{"500台", false},
		{"受付時間 9時から17時", false},
		{"豊島区", false},
	}

	for _, tt := range tests {
		if got := isHoursCell(tt.input); got != tt.want {
			t.Errorf("isHoursCell(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
