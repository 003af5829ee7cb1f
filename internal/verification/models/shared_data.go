package models

// SharedData is the minimal-disclosure payload of a proof. Every field is
// optional so that only what a rule produced is serialized; field order is
// fixed, which keeps the JSON encoding byte-stable for equal inputs.
type SharedData struct {
	AgeVerified      *bool   `json:"ageVerified,omitempty"`
	Age              *int    `json:"age,omitempty"`
	Nationality      *string `json:"nationality,omitempty"`
	FullName         *string `json:"fullName,omitempty"`
	Address          *string `json:"address,omitempty"`
	IdentityVerified *bool   `json:"identityVerified,omitempty"`
}

// Keys lists the disclosed field names in serialization order.
func (d SharedData) Keys() []string {
	var keys []string
	if d.AgeVerified != nil {
		keys = append(keys, "ageVerified")
	}
	if d.Age != nil {
		keys = append(keys, "age")
	}
	if d.Nationality != nil {
		keys = append(keys, "nationality")
	}
	if d.FullName != nil {
		keys = append(keys, "fullName")
	}
	if d.Address != nil {
		keys = append(keys, "address")
	}
	if d.IdentityVerified != nil {
		keys = append(keys, "identityVerified")
	}
	return keys
}

// IsEmpty reports whether nothing was disclosed.
func (d SharedData) IsEmpty() bool {
	return len(d.Keys()) == 0
}
