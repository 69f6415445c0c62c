package control

import (
	"fmt"
	"strings"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Regime names a culture operating mode.
type Regime string

const (
	RegimeBatch          Regime = "batch"
	RegimeChemostat      Regime = "chemostat"
	RegimeTurbidostat    Regime = "turbidostat"
	RegimeSemiContinuous Regime = "semicontinuous"
)

// Regimes lists the supported regimes in display order.
func Regimes() []Regime {
	return []Regime{RegimeBatch, RegimeChemostat, RegimeTurbidostat, RegimeSemiContinuous}
}

// ParseRegime accepts the canonical names plus a few spellings used in
// older notebooks ("semi-continuous", "semicontinuousbatch").
func ParseRegime(s string) (Regime, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "batch":
		return RegimeBatch, nil
	case "chemostat":
		return RegimeChemostat, nil
	case "turbidostat":
		return RegimeTurbidostat, nil
	case "semicontinuous", "semicontinuousbatch", "semibatch":
		return RegimeSemiContinuous, nil
	}
	return "", &dynamo.ConfigError{Field: "regime", Value: s, Reason: fmt.Sprintf("must be one of %v", Regimes())}
}

// Policy is a dilution policy with a stable name for reporting.
type Policy interface {
	dynamo.Controller
	Name() string
}
