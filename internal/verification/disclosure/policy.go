// Package disclosure derives minimal facts from a credential. Every function
// here is pure: the same credential, attributes and clock yield the same output.
package disclosure

import (
	"time"

	credmodels "proofgate/internal/credential/models"
	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
)

// AdultAge is the threshold behind ageVerified.
const AdultAge = 18

// NotProvided stands in for optional credential fields left blank.
const NotProvided = "Not provided"

// Disclose applies the rule for each requested attribute and merges the results.
func Disclose(fields []id.Attribute, c *credmodels.Credential, now time.Time) models.SharedData {
	var out models.SharedData
	for _, f := range fields {
		apply(&out, f, c, now)
	}
	return out
}

func apply(out *models.SharedData, a id.Attribute, c *credmodels.Credential, now time.Time) {
	switch a {
	case id.AttributeAge:
		dob, ok := c.BirthDate()
		if !ok || dob.After(now) {
			return
		}
		age := AgeAt(dob, now)
		adult := age >= AdultAge
		out.Age = &age
		out.AgeVerified = &adult
	case id.AttributeNationality:
		out.Nationality = orNotProvided(c.Nationality)
	case id.AttributeFullName:
		name := c.FullName
		out.FullName = &name
	case id.AttributeAddress:
		out.Address = orNotProvided(c.Address)
	case id.AttributeIdentity:
		verified := true
		out.IdentityVerified = &verified
	default:
		// unsupported attributes disclose nothing
	}
}

// AgeAt returns completed years between dob and now, counting a birthday
// only once its month and day have been reached. Feb 29 birthdays roll over on Mar 1
// in non-leap years.
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func orNotProvided(v string) *string {
	if v == "" {
		v = NotProvided
	}
	return &v
}
