package notifier

import (
	"fmt"
	"html"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram pushes operational notifications to an admin chat.
// Notifications are best-effort: a nil *Telegram (no token configured)
// or a send failure never affects the calling request.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		log.Println("[NOTIFY] Telegram not configured, notifications disabled")
		return nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("[NOTIFY] Telegram init failed, notifications disabled: %v", err)
		return nil
	}

	log.Printf("[NOTIFY] Telegram notifications enabled for bot @%s", api.Self.UserName)
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) send(text string) {
	if t == nil || t.api == nil {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		log.Printf("[NOTIFY] Telegram send failed: %v", err)
	}
}

// rupees renders a paise amount as a rupee string for chat messages.
func rupees(paise int64) string {
	whole := paise / 100
	frac := paise % 100
	if frac < 0 {
		frac = -frac
	}
	if frac == 0 {
		return fmt.Sprintf("₹%d", whole)
	}
	return fmt.Sprintf("₹%d.%02d", whole, frac)
}

func (t *Telegram) NotifyNewUser(name, email, refCode, invitedBy string) {
	text := fmt.Sprintf(
		"🎉 <b>New User Registered</b>\n\n"+
			"👤 Name: %s\n📧 Email: %s\n🔗 Referral Code: <code>%s</code>\n",
		html.EscapeString(name), html.EscapeString(email), html.EscapeString(refCode))
	if invitedBy != "" {
		text += fmt.Sprintf("🤝 Invited By: <code>%s</code>\n", html.EscapeString(invitedBy))
	}
	text += fmt.Sprintf("\n🕐 %s", time.Now().Format("02 Jan 2006 15:04"))
	t.send(text)
}

func (t *Telegram) NotifyTaskSubmission(userName, userEmail, taskTitle string, reward int64) {
	t.send(fmt.Sprintf(
		"📋 <b>New Task Submission</b>\n\n"+
			"👤 User: %s (%s)\n📌 Task: %s\n💰 Reward: %s\n\n🕐 %s",
		html.EscapeString(userName), html.EscapeString(userEmail),
		html.EscapeString(taskTitle), rupees(reward),
		time.Now().Format("02 Jan 2006 15:04")))
}

func (t *Telegram) NotifyWithdrawalRequest(userName, userEmail string, amount int64, method string) {
	t.send(fmt.Sprintf(
		"💸 <b>New Withdrawal Request</b>\n\n"+
			"👤 User: %s (%s)\n💰 Amount: %s\n🏦 Method: %s\n\n🕐 %s",
		html.EscapeString(userName), html.EscapeString(userEmail),
		rupees(amount), html.EscapeString(method),
		time.Now().Format("02 Jan 2006 15:04")))
}

func (t *Telegram) NotifyAdminAction(action, details string) {
	t.send(fmt.Sprintf(
		"⚙️ <b>Admin Action</b>\n\n🛠 Action: %s\n📝 %s\n\n🕐 %s",
		html.EscapeString(action), html.EscapeString(details),
		time.Now().Format("02 Jan 2006 15:04")))
}
