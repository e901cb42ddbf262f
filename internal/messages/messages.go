package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/i18n"
	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/shopspring/decimal"
)

const ParseModeHTML = "HTML"

const dateLayout = "2006-01-02 15:04 UTC"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

// Amount renders a balance with the trailing zeros of its scale trimmed.
func Amount(d decimal.Decimal) string {
	return fmt.Sprintf("<code>%s</code>", d.String())
}

func ErrorDefault(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🚫 <b>Ошибка</b>\nПопробуйте ещё раз.",
		"🚫 <b>Error</b>\nPlease try again.")
}

func ErrorUnsupportedMessageType(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🤖 <b>Я так не умею</b>\nОтправьте текстовое сообщение.",
		"🤖 <b>I can't handle that</b>\nSend me a text message.")
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	return i18n.Pick(lang, "❓ <b>Команда не найдена</b>", "❓ <b>Unknown command</b>")
}

func StartWelcome(lang i18n.Lang, created bool, bonus decimal.Decimal, referralCode string) string {
	var sb strings.Builder
	sb.WriteString(i18n.Pick(lang, "👋 <b>Привет!</b>\n", "👋 <b>Hi!</b>\n"))
	sb.WriteString(i18n.Pick(lang,
		"Пишите мне что угодно: за каждый ответ вам начисляется баланс.\n",
		"Chat with me about anything: every reply credits your balance.\n"))
	if created && bonus.IsPositive() {
		sb.WriteString("\n🎁 ")
		sb.WriteString(i18n.Pick(lang, "Бонус за регистрацию: ", "Signup bonus: "))
		sb.WriteString(Amount(bonus))
		sb.WriteString("\n")
	}
	if referralCode != "" {
		sb.WriteString("\n🔗 ")
		sb.WriteString(i18n.Pick(lang, "Ваш реферальный код: ", "Your referral code: "))
		sb.WriteString(fmt.Sprintf("<code>%s</code>", Escape(referralCode)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(i18n.Pick(lang, "Команды: /help", "Commands: /help"))
	return sb.String()
}

func Help(lang i18n.Lang) string {
	if lang == i18n.RU {
		return "ℹ️ <b>Команды</b>\n" +
			"/balance - баланс и премиум\n" +
			"/referral - реферальная ссылка\n" +
			"/stats - ваша статистика\n" +
			"/model - ставки за сообщения\n" +
			"/link КОД - привязать веб-аккаунт\n" +
			"/lang - язык\n\n" +
			"Любое другое сообщение - это чат."
	}
	return "ℹ️ <b>Commands</b>\n" +
		"/balance - balance and premium\n" +
		"/referral - referral link\n" +
		"/stats - your statistics\n" +
		"/model - pay rates\n" +
		"/link CODE - attach your web account\n" +
		"/lang - language\n\n" +
		"Anything else is a chat message."
}

func Balance(lang i18n.Lang, acc types.Account, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(i18n.Pick(lang, "💰 <b>Баланс:</b> ", "💰 <b>Balance:</b> "))
	sb.WriteString(Amount(acc.Balance))
	sb.WriteString("\n")
	sb.WriteString(i18n.Pick(lang, "📈 <b>Заработано всего:</b> ", "📈 <b>Total earned:</b> "))
	sb.WriteString(Amount(acc.TotalEarned))
	sb.WriteString("\n")
	if acc.PremiumActive(now) {
		sb.WriteString(i18n.Pick(lang, "⭐ <b>Премиум до:</b> ", "⭐ <b>Premium until:</b> "))
		sb.WriteString(acc.PremiumExpiresAt.UTC().Format(dateLayout))
	} else {
		sb.WriteString(i18n.Pick(lang, "⭐ Премиум не активен", "⭐ Premium is not active"))
	}
	return sb.String()
}

func Stats(lang i18n.Lang, snap types.StatsSnapshot) string {
	return fmt.Sprintf(i18n.Pick(lang,
		"📊 <b>Статистика</b>\nПользователей: <b>%d</b>\nСообщений: <b>%d</b>\nВыплачено за чаты: %s\nОбновлено: %s",
		"📊 <b>Statistics</b>\nUsers: <b>%d</b>\nChats: <b>%d</b>\nPaid for chats: %s\nUpdated: %s"),
		snap.TotalUsers, snap.TotalChats, Amount(snap.TotalEarnings), snap.LastUpdated.UTC().Format(dateLayout))
}

// UserStats is the per-account report behind /stats.
func UserStats(lang i18n.Lang, acc types.Account, counts types.ChatCounts) string {
	avg := decimal.Zero
	if counts.Total > 0 {
		avg = acc.TotalEarned.Div(decimal.NewFromInt(counts.Total)).Round(3)
	}
	return fmt.Sprintf(i18n.Pick(lang,
		"📊 <b>Ваша статистика</b>\nСообщений: <b>%d</b>\nTelegram: %d\nВеб: %d\nБаланс: %s\nЗаработано всего: %s\nВ среднем за сообщение: %s",
		"📊 <b>Your statistics</b>\nMessages: <b>%d</b>\nTelegram: %d\nWeb: %d\nBalance: %s\nTotal earned: %s\nAverage per message: %s"),
		counts.Total, counts.Telegram, counts.Web, Amount(acc.Balance), Amount(acc.TotalEarned), Amount(avg))
}

func ModelInfo(lang i18n.Lang, p pricing.Policy) string {
	referral := Amount(p.ReferralBonusRate)
	if p.ReferralMode == pricing.ReferralFraction {
		referral = p.ReferralBonusRate.Mul(decimal.NewFromInt(100)).String() + "%"
	}
	return fmt.Sprintf(i18n.Pick(lang,
		"🤖 <b>Ставки</b>\nЗа сообщение: %s\nС премиумом: %s (x%s)\nРефереру за сообщение приглашённого: %s",
		"🤖 <b>Pay rates</b>\nPer message: %s\nWith premium: %s (x%s)\nReferrer bonus per invited user's message: %s"),
		Amount(pricing.ChatEarnings(p, false)), Amount(pricing.ChatEarnings(p, true)), p.PremiumMultiplier.String(), referral)
}

// Referral shows the code and, when the bot username is known, a deep link
// that passes the code to /start.
func Referral(lang i18n.Lang, code string, sum types.ReferralSummary, botUsername string) string {
	var sb strings.Builder
	sb.WriteString(i18n.Pick(lang, "🔗 <b>Реферальный код:</b> ", "🔗 <b>Referral code:</b> "))
	sb.WriteString(fmt.Sprintf("<code>%s</code>\n", Escape(code)))
	if botUsername != "" {
		sb.WriteString(fmt.Sprintf("https://t.me/%s?start=%s\n", Escape(botUsername), Escape(code)))
	}
	sb.WriteString(fmt.Sprintf(i18n.Pick(lang,
		"\nПриглашено: <b>%d</b>\nЗаработано на рефералах: %s",
		"\nInvited: <b>%d</b>\nEarned from referrals: %s"),
		sum.Invited, Amount(sum.Earned)))
	return sb.String()
}

func LangChoose(lang i18n.Lang) string {
	return i18n.Pick(lang, "🌐 <b>Выберите язык</b>", "🌐 <b>Choose a language</b>")
}

func LangSet(lang i18n.Lang) string {
	return i18n.Pick(lang, "✅ Язык: <b>русский</b>", "✅ Language: <b>English</b>")
}

func LangInvalid(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"⚠️ Неизвестный язык. Доступны: <code>ru</code>, <code>en</code>",
		"⚠️ Unknown language. Available: <code>ru</code>, <code>en</code>")
}

func ChatReply(lang i18n.Lang, text string, earned decimal.Decimal, replayed bool) string {
	msg := Escape(text)
	if replayed {
		return msg
	}
	return msg + "\n\n💸 +" + Amount(earned) + i18n.Pick(lang, " на баланс", " to your balance")
}

func GeneratorUnavailable(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"😴 <b>Не могу ответить сейчас</b>\nПопробуйте чуть позже, баланс не изменился.",
		"😴 <b>I can't answer right now</b>\nTry again shortly, your balance is unchanged.")
}

func EmptyTextHint(lang i18n.Lang) string {
	return i18n.Pick(lang, "✍️ <b>Пустое сообщение</b>", "✍️ <b>Empty message</b>")
}

func LinkUsage(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🔗 Получите код на сайте и отправьте: <code>/link КОД</code>",
		"🔗 Get a code on the website and send: <code>/link CODE</code>")
}

func LinkDone(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"✅ <b>Telegram привязан</b>\nТеперь это один аккаунт и один баланс.",
		"✅ <b>Telegram linked</b>\nYou now share one account and one balance.")
}

func LinkDuplicate(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"⚠️ <b>Этот Telegram уже привязан к другому аккаунту</b>",
		"⚠️ <b>This Telegram account already belongs to another account</b>")
}

func LinkInvalid(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🚫 <b>Код недействителен или истёк</b>",
		"🚫 <b>The code is invalid or expired</b>")
}

func AdminGrantUsage(lang i18n.Lang) string {
	return i18n.Pick(lang,
		"🛠 <code>/grant &lt;telegram id | account id&gt; &lt;дней&gt;</code>",
		"🛠 <code>/grant &lt;telegram id | account id&gt; &lt;days&gt;</code>")
}

func AdminGrantDone(lang i18n.Lang, accountID string, until time.Time) string {
	return fmt.Sprintf(i18n.Pick(lang,
		"✅ Премиум для <code>%s</code> до %s",
		"✅ Premium for <code>%s</code> until %s"),
		Escape(accountID), until.UTC().Format(dateLayout))
}

func AdminAccountNotFound(lang i18n.Lang) string {
	return i18n.Pick(lang, "🚫 Аккаунт не найден", "🚫 Account not found")
}
