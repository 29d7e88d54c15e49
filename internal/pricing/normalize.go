package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Правила нормализации котировок. Пороги - константы конкретного провайдера,
// а не вычисляемые величины.
//
// Yahoo (фьючерсы GC=F, SI=F, PL=F) иногда отдает цену в центах: значение
// выше порога делится на 100.
//
// Stooq для некоторых пар отдает обратную котировку (металл за доллар,
// например usdxpt): значение меньше 1 инвертируется.
var (
	yahooGoldCentsThreshold     = decimal.NewFromInt(100000)
	yahooSilverCentsThreshold   = decimal.NewFromInt(1000)
	yahooPlatinumCentsThreshold = decimal.NewFromInt(50000)

	stooqInvertedBelow = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

// normalizeCents делит значение на 100, если оно выше порога.
func normalizeCents(metal string, v, threshold decimal.Decimal) (decimal.Decimal, string) {
	if v.GreaterThan(threshold) {
		out := v.Div(hundred)
		return out, fmt.Sprintf("%s scaled /100 (raw %s > %s)", metal, v, threshold)
	}
	return v, ""
}

// normalizeInverted инвертирует положительное значение меньше 1.
func normalizeInverted(metal string, v decimal.Decimal) (decimal.Decimal, string) {
	if v.IsPositive() && v.LessThan(stooqInvertedBelow) {
		out := decimal.NewFromInt(1).Div(v)
		return out, fmt.Sprintf("%s inverted (raw %s < 1)", metal, v)
	}
	return v, ""
}

// normalizeYahoo применяет правила Yahoo к котировке.
func normalizeYahoo(q *Quote) {
	var note string
	q.Gold, note = normalizeCents("gold", q.Gold, yahooGoldCentsThreshold)
	q.Notes = appendNote(q.Notes, note)
	q.Silver, note = normalizeCents("silver", q.Silver, yahooSilverCentsThreshold)
	q.Notes = appendNote(q.Notes, note)
	if q.Platinum != nil {
		p, n := normalizeCents("platinum", *q.Platinum, yahooPlatinumCentsThreshold)
		q.Platinum = &p
		q.Notes = appendNote(q.Notes, n)
	}
}

// normalizeStooq применяет правила Stooq к котировке.
func normalizeStooq(q *Quote) {
	var note string
	q.Gold, note = normalizeInverted("gold", q.Gold)
	q.Notes = appendNote(q.Notes, note)
	q.Silver, note = normalizeInverted("silver", q.Silver)
	q.Notes = appendNote(q.Notes, note)
	if q.Platinum != nil {
		p, n := normalizeInverted("platinum", *q.Platinum)
		q.Platinum = &p
		q.Notes = appendNote(q.Notes, n)
	}
}

func appendNote(notes []string, note string) []string {
	if note == "" {
		return notes
	}
	return append(notes, note)
}
