package chat

import (
	"fmt"
	"sort"
	"strings"

	"toshima-parking-finder/internal/models"
)

var (
	greetingKeywords     = []string{"こんにちは", "こんばんは", "おはよう", "はじめまして"}
	locationKeywords     = []string{"近", "最寄", "駅", "徒歩", "距離"}
	availabilityKeywords = []string{"空", "空い", "利用可能", "使える"}
)

// Spots with more free slots than this count as available
const availableThreshold = 10

const noDataMessage = "現在表示できる駐輪場データがありません。しばらくしてから再度お試しください🙏"

// FreeTextResponse answers a typed message by keyword intent: greeting, nearest,
// availability, otherwise a general hint
func FreeTextResponse(message string, spots []models.ParkingSpot) Response {
	switch {
	case containsAny(message, greetingKeywords):
		return Response{
			Response:    "こんにちは！池袋エリアの駐輪場案内アシスタントです😊 選択肢モードで簡単検索できます！",
			Type:        TypeGreeting,
			ParkingLots: firstN(spots, maxShownSpots),
			Suggestions: []string{"🎯 選択肢モードを試す", "空いている場所", "近い場所", "安い場所"},
		}

	case containsAny(message, locationKeywords):
		nearest := append([]models.ParkingSpot(nil), spots...)
		sort.SliceStable(nearest, func(i, j int) bool {
			return nearest[i].Distance < nearest[j].Distance
		})
		nearest = firstN(nearest, maxShownSpots)

		resp := Response{
			Type:        TypeNearest,
			ParkingLots: nearest,
			Suggestions: []string{"空き状況を確認", "料金を比較", "🎯 選択肢モード"},
		}
		if len(nearest) == 0 {
			resp.Response = noDataMessage
		} else {
			resp.Response = fmt.Sprintf("池袋駅から一番近いのは%sです！徒歩%d分です🚶‍♂️", nearest[0].Name, nearest[0].WalkTime)
		}
		return resp

	case containsAny(message, availabilityKeywords):
		var available []models.ParkingSpot
		for _, p := range spots {
			if p.Capacity.Available > availableThreshold {
				available = append(available, p)
			}
		}
		sort.SliceStable(available, func(i, j int) bool {
			return available[i].Capacity.Available > available[j].Capacity.Available
		})
		available = firstN(available, maxShownSpots)

		resp := Response{
			Type:        TypeAvailable,
			ParkingLots: available,
			Suggestions: []string{"もっと空いている場所", "🎯 選択肢モード", "料金を確認"},
		}
		if len(available) == 0 {
			resp.Response = "今は空きの多い駐輪場が見つかりませんでした😅 時間をおいて確認してみてください。"
		} else {
			resp.Response = fmt.Sprintf("今なら%dヶ所で空きがあります！一番空いているのは%sです🟢", len(available), available[0].Name)
		}
		return resp
	}

	return Response{
		Response:    "選択肢モードで簡単に条件を指定できます！🎯 または、「近い場所」「安い場所」など条件を教えてください😊",
		Type:        TypeGeneral,
		ParkingLots: firstN(spots, maxShownSpots),
		Suggestions: []string{"🎯 選択肢モードを試す", "空いている駐輪場", "一番近い駐輪場", "料金が安い順"},
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
