package domain

// Shop is one restaurant returned by the gourmet search API. Only Name is
// used when building prompts.
type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}
