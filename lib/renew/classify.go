package renew

import "strings"

// phrase tables are checked in order, the first hit wins. Castle-Host
// answers in Russian, KataBump and Pella in English, and both like to
// reword their messages, so matching stays loose.
var cooldownPhrases = []string{
	"24 час",
	"24 hour",
	"can only once at one time period",
	"can't renew",
	"cannot renew",
	"too early",
	"попробуйте позже",
}

var alreadyRenewedPhrases = []string{
	"уже продлен",
	"already renewed",
	"already extended",
}

var insufficientPhrases = []string{
	"недостаточно",
	"insufficient",
	"not enough",
}

var maxPeriodPhrases = []string{
	"максимальн",
	"maximum",
	"max period",
}

var vkPhrases = []string{
	"привяжите вк",
	"привязать вк",
	"vk.com",
	"link vk",
}

var successPhrases = []string{
	"успешно",
	"продлен до",
	"success",
	"renewed",
	"extended",
}

func matchAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Classify maps a panel's renewal response text onto a status. Unmatched
// text comes back as StatusUnknown so the operator sees the raw message.
func Classify(text string) Status {
	lower := strings.ToLower(text)

	switch {
	case matchAny(lower, cooldownPhrases):
		return StatusCooldown
	case matchAny(lower, alreadyRenewedPhrases):
		return StatusAlreadyRenewed
	case matchAny(lower, insufficientPhrases):
		return StatusInsufficientFunds
	case matchAny(lower, maxPeriodPhrases):
		return StatusMaxPeriod
	case matchAny(lower, vkPhrases):
		return StatusVkRequired
	case matchAny(lower, successPhrases):
		return StatusRenewed
	}
	return StatusUnknown
}

// ClassifyError maps text a panel returned on an error path. The success
// table never applies here, an error message quoting the word "renewed"
// is still a failure.
func ClassifyError(text string) Status {
	status := Classify(text)
	if status == StatusRenewed {
		return StatusFailed
	}
	return status
}
