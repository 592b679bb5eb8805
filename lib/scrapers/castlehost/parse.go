package castlehost

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renew"
)

// ordered from most to least specific, the bare date pattern would also
// match registration dates elsewhere on the page
var expiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Сервер действует до (\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`Оплачено до (\d{2}\.\d{2}\.\d{4})`),
	regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s*\([^)]*\)`),
	regexp.MustCompile(`\b(\d{2}\.\d{2}\.\d{4})\b`),
}

var runningRe = regexp.MustCompile(`(?i)Сервер запущен|Server running`)
var balanceRe = regexp.MustCompile(`(\d+\.\d+)\s*₽`)
var freeTariffRe = regexp.MustCompile(`(?i)Бесплатный|Бесплатно|Free`)
var successRe = regexp.MustCompile(`(?i)Сервер продлен|продлен успешно|успешно продлен`)

type serverInfo struct {
	Running    bool
	Expiry     time.Time
	Balance    string
	FreeTariff bool
}

func extractExpiry(body string) (time.Time, bool) {
	for _, pattern := range expiryPatterns {
		m := pattern.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		t, err := expiry.ParseDate(m[1])
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseServerInfo(body string) serverInfo {
	info := serverInfo{
		Running:    runningRe.MatchString(body),
		FreeTariff: freeTariffRe.MatchString(body),
	}
	info.Expiry, _ = extractExpiry(body)
	m := balanceRe.FindStringSubmatch(body)
	if m != nil {
		info.Balance = m[1]
	}
	return info
}

type renewalResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Success bool   `json:"success"`
	Renewed bool   `json:"renewed"`
}

// classifyRenewalBody interprets the /buy_months/ ajax response. The panel
// answers with json most of the time but falls back to plain text.
func classifyRenewalBody(body string) (renew.Status, string) {
	var parsed renewalResponse
	err := json.Unmarshal([]byte(body), &parsed)
	if err == nil && (parsed.Status != "" || parsed.Success || parsed.Renewed) {
		switch {
		case parsed.Status == "error":
			return renew.ClassifyError(parsed.Error), parsed.Error
		case parsed.Status == "success", parsed.Status == "ok", parsed.Success, parsed.Renewed:
			return renew.StatusRenewed, ""
		default:
			return renew.StatusUnknown, body
		}
	}

	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "ошибка"):
		return renew.ClassifyError(body), body
	case strings.Contains(lower, "success"), strings.Contains(lower, "успех"):
		return renew.StatusRenewed, ""
	}
	return renew.StatusUnknown, body
}
