package contacts

// Well-known column names in the contacts file
const (
	ColLegalName = "RazaoSocial"
	ColTradeName = "NomeFantasia"
	ColEmail1    = "Email1"
	ColEmail2    = "Email2"
	ColEmail3    = "Email3"
)

// Record is a single recipient row from the contacts file.
// Identity is the legal name and is the deduplication key across runs.
type Record struct {
	Identity   string
	TradeName  string
	Candidates []string          // candidate addresses in priority order
	Attributes map[string]string // every column of the row, by header name
}

// Attr returns a named attribute of the record
func (r *Record) Attr(name string) (string, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}
