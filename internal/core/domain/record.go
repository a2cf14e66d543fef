package domain

// Record is the normalized output unit. Email is the dedup key and is
// compared case-sensitively.
type Record struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OutputHeader is the header row written above the combined records.
var OutputHeader = []string{"Name", "Email"}

// Row renders the record as an output row.
func (r Record) Row() []string {
	return []string{r.Name, r.Email}
}
