package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase points the service at another Bot API host.
func (s *TelegramService) WithAPIBase(base string) *TelegramService {
	s.apiBase = strings.TrimRight(base, "/")
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Debug().Msg("telegram bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Debug().Msg("telegram admin chat not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// PurchaseNotification contains purchase data for the admin chat.
type PurchaseNotification struct {
	PurchaseID       string
	GatewayPaymentID string
	Buyer            string
	Items            []PurchaseItemNotification
	Total            int64
	Currency         string
	Address          string
}

// PurchaseItemNotification contains one purchased line.
type PurchaseItemNotification struct {
	Title     string
	Quantity  int
	UnitPrice int64
}

// FormatPrice renders a minor-unit amount with thousand separators, e.g. "1,250.00 INR".
func FormatPrice(amount int64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	str := fmt.Sprintf("%d", amount/100)
	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return fmt.Sprintf("%s%s.%02d %s", sign, result.String(), amount%100, currency)
}

// NotifyPurchase tells the admin chat about a recorded purchase. Caller-supplied
// text is escaped for the HTML parse mode.
func (s *TelegramService) NotifyPurchase(ctx context.Context, p PurchaseNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range p.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Title),
			item.Quantity,
			FormatPrice(item.UnitPrice, p.Currency),
			FormatPrice(item.UnitPrice*int64(item.Quantity), p.Currency),
		))
	}

	message := fmt.Sprintf(`<b>📚 NEW PURCHASE</b>
<b>Purchase:</b> %s
<b>Payment:</b> %s
<b>Buyer:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Ship to:</b> %s
━━━━━━━━━━━━━━━━━━`,
		html.EscapeString(p.PurchaseID),
		html.EscapeString(p.GatewayPaymentID),
		html.EscapeString(p.Buyer),
		itemsList.String(),
		FormatPrice(p.Total, p.Currency),
		html.EscapeString(p.Address),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
