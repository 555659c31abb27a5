package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// totpStep is the RFC 6238 counter for t.
func totpStep(t time.Time) int64 {
	return t.Unix() / totpPeriod
}

// matchTOTPStep checks code against the steps around now, allowing one step of clock skew,
// and returns the step it matched. Steps at or before spent never match.
func matchTOTPStep(code, secret string, now time.Time, spent int64) (int64, bool) {
	current := totpStep(now)
	for _, step := range []int64{current - 1, current, current + 1} {
		if step <= spent {
			continue
		}
		ok, err := totp.ValidateCustom(code, secret, time.Unix(step*totpPeriod, 0).UTC(), totpOpts)
		if err == nil && ok {
			return step, true
		}
	}
	return 0, false
}
