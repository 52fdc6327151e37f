package contacts

import "strings"

// legalSuffixes are stripped from the end of a company name, at most one
var legalSuffixes = []string{
	" LTDA", " LTDA.", " S.A.", " S/A", " SA", " S.A",
	" EIRELI", " ME", " EPP", " MICROEMPRESA", " - ME",
	" - EPP", " - EIRELI", " LIMITADA",
}

// SelectAddress scans the candidate addresses in priority order and returns
// the first plausible one, lowercased, with its 1-based rank. A candidate is
// plausible when it contains exactly one "@", a "." in the domain part, and
// is longer than 5 characters. Returns ("", 0) when no candidate matches.
func SelectAddress(rec *Record) (string, int) {
	for i, candidate := range rec.Candidates {
		addr := strings.ToLower(strings.TrimSpace(candidate))
		if plausible(addr) {
			return addr, i + 1
		}
	}
	return "", 0
}

func plausible(addr string) bool {
	if len(addr) <= 5 {
		return false
	}
	if strings.Count(addr, "@") != 1 {
		return false
	}
	domain := addr[strings.Index(addr, "@")+1:]
	return strings.Contains(domain, ".")
}

// DisplayName returns the best short name for the company: the trade name
// when present, otherwise the legal name, with at most one legal-entity
// suffix stripped case-insensitively from the end.
func DisplayName(rec *Record) string {
	name := strings.TrimSpace(rec.TradeName)
	if name == "" {
		name = strings.TrimSpace(rec.Identity)
	}
	return StripLegalSuffix(name)
}

// StripLegalSuffix removes one trailing legal-entity suffix from a name
func StripLegalSuffix(name string) string {
	upper := strings.ToUpper(name)
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return strings.TrimSpace(name[:len(name)-len(suffix)])
		}
	}
	return strings.TrimSpace(name)
}

// Provider classifies an address domain into a reporting group
func Provider(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return "desconhecido"
	}
	domain := strings.ToLower(addr[at+1:])

	switch {
	case domain == "gmail.com":
		return "gmail"
	case domain == "hotmail.com" || domain == "outlook.com" || domain == "live.com" || domain == "msn.com":
		return "outlook"
	case domain == "uol.com.br" || domain == "yahoo.com.br":
		return "outros"
	case strings.HasSuffix(domain, ".gov.br"):
		return "governo"
	case strings.HasSuffix(domain, ".edu.br"):
		return "educacional"
	default:
		return "corporativo"
	}
}
