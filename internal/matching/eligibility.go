package matching

import (
	"encoding/json"
	"regexp"
	"time"

	"gorm.io/datatypes"

	"github.com/lifelink/lifelink/internal/models"
)

// disqualifyingConditions screens the self-reported health conditions on a
// donor's verification record. Matching is case-insensitive and substring
// based, so "recent hepatitis b" and "Hepatitis" both disqualify.
var disqualifyingConditions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hepatitis`),
	regexp.MustCompile(`(?i)\bhiv\b`),
	regexp.MustCompile(`(?i)malaria`),
	regexp.MustCompile(`(?i)recent\s+surgery`),
	regexp.MustCompile(`(?i)pregnan`),
}

// Eligible reports whether a donor may respond to the alert. The verification
// record may be nil when the donor has never been screened; a lookup that
// errored must be handled by the caller by excluding the donor (fail closed).
func Eligible(donor *models.Donor, verification *models.DonorVerification, alert *models.Alert, now time.Time) bool {
	if donor == nil || alert == nil {
		return false
	}

	if donor.BloodType != alert.BloodType {
		return false
	}

	if donor.HealthStatus == models.HealthRestricted {
		return false
	}

	if verification != nil && hasDisqualifyingCondition(verification.HealthConditions) {
		return false
	}

	lastDonation := donor.LastDonationAt
	if verification != nil && verification.LastDonationDate != nil {
		lastDonation = verification.LastDonationDate
	}
	if lastDonation != nil && now.Sub(*lastDonation) < models.MinDonationInterval {
		return false
	}

	return true
}

// FilterEligible reduces the donor population to those who may respond to the
// alert. Donors without an entry in verifications are treated as unscreened;
// donors whose verification could not be resolved must not appear in the map
// or the slice at all.
func FilterEligible(donors []models.Donor, verifications map[string]*models.DonorVerification, alert *models.Alert, now time.Time) []models.Donor {
	eligible := make([]models.Donor, 0, len(donors))
	for i := range donors {
		donor := &donors[i]
		if Eligible(donor, verifications[donor.ID], alert, now) {
			eligible = append(eligible, *donor)
		}
	}
	return eligible
}

func hasDisqualifyingCondition(raw datatypes.JSON) bool {
	if len(raw) == 0 {
		return false
	}

	var conditions []string
	if err := json.Unmarshal(raw, &conditions); err != nil {
		// Unparseable screening data disqualifies rather than slipping through.
		return true
	}

	for _, condition := range conditions {
		for _, pattern := range disqualifyingConditions {
			if pattern.MatchString(condition) {
				return true
			}
		}
	}
	return false
}
