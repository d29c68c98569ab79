package normalizer

import (
	"regexp"
	"strings"
)

// compile widens \d and \s to their Unicode categories so that full-width digits and the
// ideographic space found on the ward pages match like their ASCII counterparts.
func compile(pattern string) *regexp.Regexp {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			switch {
			case next == 'd':
				b.WriteString(`\p{Nd}`)
			case next == 's' && inClass:
				b.WriteString(`\s\p{Z}`)
			case next == 's':
				b.WriteString(`[\s\p{Z}]`)
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
			i++
			continue
		}
		switch c {
		case '[':
			inClass = true
		case ']':
			inClass = false
		}
		b.WriteByte(c)
	}
	return regexp.MustCompile(b.String())
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = compile(p)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Facility name keywords

var nameAllowKeywords = []string{
	"駐輪場",
	"駐車場",
	"パーキング",
	"リパーク",
	"エコステーション",
}

var nameDenyKeywords = []string{
	"管理課", "管理グループ", "土木管理", "問い合わせ", "連絡先", "事務所",
	"管理人室", "受付所", "案内所", "管理事務所", "管理室",
	"各駅の", "放置禁止", "一覧", "写真", "図", "紹介", "お問い合わせ",
	"窓口", "担当", "部署", "電話：", "利用時間", "定期利用", "料金",
	"円", "区では", "開場", "閉場", "最終電車", "利用状況", "考慮",
	"各施設", "異なって", "運営", "定期購入", "可能", "割引", "詳しく",
	"受付", "抽選", "随時", "原則", "午前", "午後", "前月", "末日",
	"納入", "返還", "注意", "緊急事態宣言", "複数月", "当日利用",
	"回数券", "販売", "つづり", "共通利用", "登録制", "ルール",
	"定められた", "エリア内", "コイン式", "無料", "民間", "施設",
	"利用料金", "免除", "規定", "対象外", "ご利用", "ご注意",
	"指定された", "区画以外", "損害", "賠償", "請求", "破損",
	"盗難", "責任", "降りて", "ご通行", "管理員", "指示",
	"したがって", "新たに", "オープン", "変更", "募集", "利用方法",
	"について", "します", "した", "この地域", "撤去", "搬入",
	"隣接", "指定", "活動", "指定管理者", "株式会社", "時間利用",
	"できません", "ください", "をもって", "閉鎖", "をご利用",
	"合わせて", "あり", "は、", "です", "ます", "ません",
}

var (
	namePhonePattern   = compile(`\d{2,4}-\d{2,4}-\d{4}`)
	nameNumericPattern = compile(`^\d+$`)
)

// Address

var addressPrefixes = []string{"住所：", "住所:"}

// Lines matching any of these are never addresses
var addressExclusions = compileAll(
	`交通案内`,
	`JR.*駅`,
	`メトロ.*駅`,
	`西武線`,
	`改札より`,
	`出口`,
	`直結`,
	`約\d+メートル`,
	`令和\d+年`,
	`閉鎖`,
	`をもって`,
	`写真街区`,
	`Dエリア`,
	`地下`,
	`[東西南北]口`,
	`エレベーター`,
	`階段`,
	`電話`,
	`TEL`,
	`営業時間`,
	`利用時間`,
	`料金`,
	`円`,
	`台`,
	`利用可`,
	`利用不可`,
	`原付`,
	`バイク`,
	`定期`,
	`月極`,
)

// Address shapes: ward/town/block numbers, or neighborhood + block numbers
var addressInclusions = compileAll(
	`.*[区市].*[町村].*\d+.*`,
	`.*[区市].*\d+-\d+.*`,
	`.*[区市].*\d+先.*`,
	`.*[区市].*\d+丁目.*`,
	`.*池袋\d+-\d+-\d+`,
	`.*大塚\d+-\d+-\d+`,
	`.*巣鴨\d+-\d+-\d+`,
	`.*要町\d+-\d+-\d+`,
	`.*巣鴨\d+-\d+$`,
	`.*目白\d+-\d+$`,
	`.*駒込\d+-\d+$`,
	`.*雑司が谷\d+-\d+$`,
	`.*千川\d+-\d+$`,
	`.*町\d+.*`,
	`.*\d+先.*`,
	`.*\d+-\d+.*先.*`,
	`.*\d+丁目\d+.*`,
	`.*[一二三四五六七八九]丁目.*`,
	`.*\d+-\d+-\d+`,
	`.*[東西南北]池袋.*\d+.*`,
)

const (
	addressMinLen = 3
	addressMaxLen = 50
)

// Keywords checked once more on the final address, independently of addressExclusions
var finalAddressExclusions = []string{
	"交通案内", "JR", "メトロ", "西武線", "改札より", "出口", "直結",
	"令和", "閉鎖", "をもって", "写真街区", "Dエリア",
	"約", "メートル", "地下", "北口", "南口", "東口", "西口",
	"エレベーター", "階段", "電話", "TEL", "円", "台",
	"営業時間", "利用時間", "料金", "原付", "バイク",
}

// Phone, tried in order; group 1 is the number

var phonePatterns = compileAll(
	`電話[：:]\s*(\d{2,4}[-\s]\d{2,4}[-\s]\d{4})`,
	`TEL[：:]\s*(\d{2,4}[-\s]\d{2,4}[-\s]\d{4})`,
	`(\d{2,4}[-\s]\d{2,4}[-\s]\d{4})`,
	`(\d{4}[-\s]\d{3}[-\s]\d{3})`, // toll free, 0120-xxx-xxx
)

// Table cells already labelled as phone only need the bare shapes
var barePhonePatterns = phonePatterns[2:]

// Loose pattern used by the line-oriented extractor
var simplePhonePattern = compile(`\d{2,4}-\d{2,4}-\d{4}`)

// Hours

var hoursPatterns = compileAll(
	`午前\d+時から[深夜午後]*\d+時\d*分?`,
	`午前\d+時.*?から.*?[深夜午後].*?時.*?\d*分?`,
	`\d+時から\d+時`,
)

// Used on the text surrounding a facility name when its own section had no hours
var contextHoursPatterns = compileAll(
	`午前\d+時から\s*深夜\d+時\d+分`,
	`午前\d+時.*?深夜\d+時\d+分`,
	`午前\d+時.*?午後\d+時.*?\d+分`,
	`午前\d+時.*?午後\d+時`,
	`\d+時.*?深夜\d+時`,
	`\d+時.*?\d+時\d+分`,
	`午前\d+時\s*深夜\d+時\d+分`,
	`午前\d+時\s+から\s+深夜\d+時\d+分`,
)

// Capacity

var capacityPattern = compile(`(\d+)\s*台`)

// Vehicle support

var vehicleSubtypePattern = compile(`[バイク原付]`)

// Fees

// "first N hours free, then every M hours P yen"; checked before the single patterns
var compoundFeePatterns = compileAll(
	`最初の\d+時間は?無料.*?以降\d+時間ごとに\d+円`,
	`最初の\d+時間無料.*?以降\d+時間ごとに\d+円`,
)

// Single coin-fee shapes in priority order
var coinFeePatterns = compileAll(
	`最初の\d+時間は?無料[、，、\s]*以降\d+時間ごとに\d+円`,
	`最初の\d+時間無料[、，、\s]*以降\d+時間ごとに\d+円`,
	`\d+時間まで無料[、，、\s]*以降\d+時間ごとに\d+円`,
	`自転車\d+円[（(]最初の\d+時間は?無料[）)]`,
	`自転車：?\s*\d+円[（(]最初の\d+時間は?無料[）)]`,
	`自転車：?\s*\d+円`,
	`\d+時間ごとに\d+円`,
	`\d+時間\d+円`,
	`\d+分\d+円`,
	`以降\d+時間ごとに\d+円`,
	`自転車\s*\d+円`,
	`コイン式.*?\d+円`,
	`時間利用.*?\d+円`,
)

// Words that mark a fee as a subscription price rather than a pay-per-use one
var subscriptionKeywords = []string{
	"一般", "学生", "ヶ月", "か月", "月額", "定期利用", "定期",
	"年間", "学生証", "身体障害者手帳", "愛の手帳", "区内居住者", "区外居住者",
	"4,500円", "3,000円", "2,500円", "1,250円", "1,500円", "2,100円", "1,400円",
}

// Amounts of 1000 yen or more are taken to be subscription prices
var highAmountPattern = compile(`[1-9]\d{3,}円`)

const feeSeparator = "、"

var whitespaceRun = compile(`\s+`)
