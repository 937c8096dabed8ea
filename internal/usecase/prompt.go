package usecase

import (
	"fmt"
	"slices"
	"strings"

	"udon-bot/internal/domain"
)

const (
	resetConfirmation = "チャット履歴リセットしたで。またうどんの話ようけしよな！"

	// shopTrigger anywhere in the text asks for a shop recommendation.
	shopTrigger  = "おすすめ"
	shopAreaCode = "Z082" // Kagawa
	shopKeyword  = "うどん"

	shopSearchHeader = "\n\n【HotPepperでランダム検索】\n"
	unknownShopName  = "店名不明"

	shopNotFoundSummary = "香川県内でうどん屋が見つからなかったみたい…ごめんね。\n" +
		"もしかするとフィルタで除外されすぎたかもしれません。"
)

var resetKeywords = []string{"リセット", "初期化", "クリア", "reset", "clear"}

func isResetCommand(text string) bool {
	return slices.Contains(resetKeywords, text)
}

func wantsShop(text string) bool {
	return strings.Contains(text, shopTrigger)
}

// buildShopSummary describes the picked shop. The address is left out on purpose.
func buildShopSummary(shop domain.Shop, found bool) string {
	if !found {
		return shopNotFoundSummary
	}
	name := shop.Name
	if name == "" {
		name = unknownShopName
	}
	return fmt.Sprintf(
		"香川県内の『おすすめのうどん屋』をランダムで1軒紹介しますよ。\n"+
			"店名: %s\n"+
			"(チェーン店でない or うどんと明記してあるお店を頑張って選んだつもりです。)",
		name,
	)
}

func buildUserTurn(text, summary string) string {
	if summary == "" {
		return text
	}
	return text + shopSearchHeader + summary
}
