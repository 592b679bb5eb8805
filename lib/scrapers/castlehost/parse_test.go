package castlehost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/timezone"
)

const samplePage = `
Мой сервер
Сервер запущен
Тариф: Бесплатный
Баланс: 10.50 ₽
Сервер действует до 15.09.2026
Продлить
`

func TestParseServerInfo(t *testing.T) {
	info := parseServerInfo(samplePage)
	require.True(t, info.Running)
	require.True(t, info.FreeTariff)
	require.Equal(t, "10.50", info.Balance)
	require.True(t, info.Expiry.Equal(time.Date(2026, 9, 15, 0, 0, 0, 0, timezone.Location)))
}

func TestExtractExpiryPatternOrder(t *testing.T) {
	testCases := []struct {
		body     string
		expected time.Time
	}{
		{
			body:     "Оплачено до 01.10.2026",
			expected: time.Date(2026, 10, 1, 0, 0, 0, 0, timezone.Location),
		},
		{
			body:     "Действует: 20.09.2026 (осталось 5 дней)",
			expected: time.Date(2026, 9, 20, 0, 0, 0, 0, timezone.Location),
		},
		{
			// the labeled date wins over a bare one appearing earlier
			body:     "Создан 01.01.2026 Сервер действует до 15.09.2026",
			expected: time.Date(2026, 9, 15, 0, 0, 0, 0, timezone.Location),
		},
	}
	for _, tc := range testCases {
		got, ok := extractExpiry(tc.body)
		require.True(t, ok, tc.body)
		require.True(t, got.Equal(tc.expected), tc.body)
	}

	_, ok := extractExpiry("нет даты на странице")
	require.False(t, ok)
}

func TestClassifyRenewalBody(t *testing.T) {
	testCases := []struct {
		body     string
		expected renew.Status
	}{
		{`{"status":"success"}`, renew.StatusRenewed},
		{`{"status":"ok"}`, renew.StatusRenewed},
		{`{"success":true}`, renew.StatusRenewed},
		{`{"renewed":true}`, renew.StatusRenewed},
		{`{"status":"error","error":"Продление доступно раз в 24 часа"}`, renew.StatusCooldown},
		{`{"status":"error","error":"Сервер уже продлен"}`, renew.StatusAlreadyRenewed},
		{`{"status":"error","error":"Недостаточно средств"}`, renew.StatusInsufficientFunds},
		{`{"status":"error","error":"Достигнут максимальный срок"}`, renew.StatusMaxPeriod},
		{`{"status":"error","error":"Привяжите ВК"}`, renew.StatusVkRequired},
		{"Ошибка: попробуйте позже", renew.StatusCooldown},
		{"Успех! Сервер продлен", renew.StatusRenewed},
		{"<html>502</html>", renew.StatusUnknown},
	}
	for _, tc := range testCases {
		got, _ := classifyRenewalBody(tc.body)
		require.Equal(t, tc.expected, got, tc.body)
	}

	// the panel's original wording is preserved for the report
	_, detail := classifyRenewalBody(`{"status":"error","error":"Недостаточно средств"}`)
	require.Equal(t, "Недостаточно средств", detail)
}

func TestClassifyRenewalBodyErrorNeverRenewed(t *testing.T) {
	// error responses whose message quotes a success word still fail
	bodies := []string{
		`{"status":"error","error":"Server cannot be renewed more than 30 days in advance"}`,
		`{"status":"error","error":"Server was not extended"}`,
		"Ошибка: server was not extended",
	}
	for _, body := range bodies {
		got, _ := classifyRenewalBody(body)
		require.NotEqual(t, renew.StatusRenewed, got, body)
		require.Equal(t, renew.StatusFailed, got, body)
	}
}
