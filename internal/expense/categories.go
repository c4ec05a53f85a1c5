package expense

import (
	"errors"
	"sort"
)

// ErrUnknownAccount is returned when a category override names no catalog account
var ErrUnknownAccount = errors.New("unknown account")

// Account is an expense account of the Swiss KMU chart of accounts
type Account struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Subset relevant for a small tech company
var accounts = map[int]Account{
	6000: {6000, "Mietaufwand", "Office rent"},
	6200: {6200, "Reparatur und Unterhalt", "Repairs and maintenance"},
	6300: {6300, "Versicherungen", "Insurance premiums"},
	6400: {6400, "Energie und Entsorgung", "Energy, utilities"},
	6500: {6500, "Verwaltungsaufwand", "General admin expenses"},
	6510: {6510, "Büromaterial", "Office supplies"},
	6520: {6520, "Drucksachen", "Printed materials"},
	6530: {6530, "Fachliteratur", "Professional literature"},
	6540: {6540, "Spesen und Reisen", "Travel expenses"},
	6570: {6570, "Lizenzen und Patente", "Domains, software licenses"},
	6580: {6580, "Beratungsaufwand", "Consulting fees"},
	6600: {6600, "Werbeaufwand", "Marketing and advertising"},
	6700: {6700, "Übriger Betriebsaufwand", "Other operating expenses"},
	6800: {6800, "Informatikaufwand", "IT expenses (general)"},
	6810: {6810, "Informatik-Infrastruktur", "Hosting, servers, hardware"},
	6820: {6820, "Informatik-Dienstleistungen", "API/SaaS/AI credits, dev services"},
	6830: {6830, "Telekommunikation", "SMS, voice, phone, telecom API"},
	6840: {6840, "Domänen und Hosting", "Domain registration, DNS hosting"},
	6850: {6850, "Software-Abonnemente", "SaaS subscriptions, cloud tools"},
}

// LookupAccount returns the catalog entry for an account number
func LookupAccount(number int) (Account, bool) {
	a, ok := accounts[number]
	return a, ok
}

// Accounts returns the catalog sorted by account number
func Accounts() []Account {
	list := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })
	return list
}
