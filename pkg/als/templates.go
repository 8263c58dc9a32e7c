package als

// Variant is one render candidate for a country. Variants phrase the same
// ambient signals (timezone, formats, units, a civic touchpoint) in
// different registers so repeated runs across seed keys do not converge on
// a single fingerprint.
type Variant struct {
	ID       string
	City     string
	TZLabel  string
	UTCShift string
	Lines    []string
}

// defaultTemplates maps ISO-3166 alpha-2 country codes to their variants.
// Rendered blocks must stay comfortably under the 350-character limit.
var defaultTemplates = map[string][]Variant{
	"US": {
		{
			ID: "us-a", City: "New York", TZLabel: "ET", UTCShift: "UTC-5",
			Lines: []string{
				"Local context: %s, %s %s (%s).",
				"%s area. Dates MM/DD/YYYY, temperatures in °F, distances in miles.",
				"State DMV and IRS services referenced locally.",
			},
		},
		{
			ID: "us-b", City: "Chicago", TZLabel: "CT", UTCShift: "UTC-6",
			Lines: []string{
				"Ambient note: %s, %s %s (%s).",
				"Around %s. ZIP-code addressing, imperial units, 12-hour clock.",
				"County clerk and USPS change-of-address are the usual touchpoints.",
			},
		},
	},
	"GB": {
		{
			ID: "gb-a", City: "London", TZLabel: "GMT", UTCShift: "UTC+0",
			Lines: []string{
				"Local context: %s, %s %s (%s).",
				"%s area. Dates DD/MM/YYYY, distances in miles, postcodes like SW1A 1AA.",
				"GOV.UK and HMRC are the usual service entry points.",
			},
		},
		{
			ID: "gb-b", City: "Manchester", TZLabel: "GMT", UTCShift: "UTC+0",
			Lines: []string{
				"Ambient note: %s, %s %s (%s).",
				"Around %s. Pound sterling, DD/MM/YYYY dates, NHS services referenced locally.",
			},
		},
	},
	"DE": {
		{
			ID: "de-a", City: "Berlin", TZLabel: "MEZ", UTCShift: "UTC+1",
			Lines: []string{
				"Lokaler Kontext: %s, %s %s (%s).",
				"Raum %s. Datumsformat TT.MM.JJJJ, Dezimalkomma, Entfernungen in km.",
				"Bürgeramt-Termine und ELSTER sind übliche Anlaufstellen.",
			},
		},
		{
			ID: "de-b", City: "München", TZLabel: "MEZ", UTCShift: "UTC+1",
			Lines: []string{
				"Hinweis zum Umfeld: %s, %s %s (%s).",
				"Region %s. Postleitzahlen fünfstellig, Preise in Euro, TT.MM.JJJJ.",
			},
		},
	},
	"FR": {
		{
			ID: "fr-a", City: "Paris", TZLabel: "HNEC", UTCShift: "UTC+1",
			Lines: []string{
				"Contexte local : %s, %s %s (%s).",
				"Région de %s. Dates JJ/MM/AAAA, virgule décimale, distances en km.",
				"Les démarches passent souvent par service-public.fr.",
			},
		},
		{
			ID: "fr-b", City: "Lyon", TZLabel: "HNEC", UTCShift: "UTC+1",
			Lines: []string{
				"Note d'ambiance : %s, %s %s (%s).",
				"Autour de %s. Codes postaux à cinq chiffres, prix en euros.",
			},
		},
	},
	"IT": {
		{
			ID: "it-a", City: "Milano", TZLabel: "CET", UTCShift: "UTC+1",
			Lines: []string{
				"Contesto locale: %s, %s %s (%s).",
				"Zona di %s. Date GG/MM/AAAA, virgola decimale, distanze in km.",
				"SPID e l'Agenzia delle Entrate sono i riferimenti consueti.",
			},
		},
	},
	"CH": {
		{
			ID: "ch-a", City: "Zürich", TZLabel: "MEZ", UTCShift: "UTC+1",
			Lines: []string{
				"Lokaler Kontext: %s, %s %s (%s).",
				"Raum %s. Preise in CHF, Datumsformat TT.MM.JJJJ, Distanzen in km.",
				"Kantonale Ämter sind die üblichen Anlaufstellen.",
			},
		},
		{
			ID: "ch-b", City: "Genève", TZLabel: "HNEC", UTCShift: "UTC+1",
			Lines: []string{
				"Contexte local : %s, %s %s (%s).",
				"Région de %s. Prix en CHF, dates JJ.MM.AAAA.",
			},
		},
	},
	"AE": {
		{
			ID: "ae-a", City: "Dubai", TZLabel: "GST", UTCShift: "UTC+4",
			Lines: []string{
				"Local context: %s, %s %s (%s).",
				"%s area. Sunday–Thursday work week references, prices in AED, distances in km.",
			},
		},
	},
	"SG": {
		{
			ID: "sg-a", City: "Singapore", TZLabel: "SGT", UTCShift: "UTC+8",
			Lines: []string{
				"Local context: %s, %s %s (%s).",
				"%s. Six-digit postal codes, prices in SGD, Singpass used for e-services.",
			},
		},
	},
}
