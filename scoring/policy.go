package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A Policy is the full scoring plus seed-layout configuration, as produced
// by ParsePolicy.
type Policy struct {
	Scoring

	// SeedMms is the number of mismatches allowed in a seed, in [0, 2].
	SeedMms int
	// SeedLen is the seed length.
	SeedLen int
	// SeedIval is the interval between seed starts.  Negative means the
	// interval is derived from Ival and the read length.
	SeedIval int
	// Ival computes the seed interval from read length; results below 1
	// are rounded up to 1.
	Ival SimpleFunc

	// PosMin and PosFrac govern how many seed positions are explored:
	// poss = clamp(round(posmin + posfrac*(n-posmin)), 1, n).
	PosMin  float64
	PosFrac float64
	// RowMin and RowMult govern how many extensions are tried per position.
	RowMin  float64
	RowMult float64
}

// IvalFor returns the seed interval for a read of length rdlen.
func (p *Policy) IvalFor(rdlen int) int {
	if p.SeedIval >= 0 {
		return p.SeedIval
	}
	iv := int(p.Ival.Eval(float64(rdlen)) + 0.5)
	if iv < 1 {
		iv = 1
	}
	return iv
}

// DefaultPolicy returns the policy produced by an empty policy string.
func DefaultPolicy(local bool) Policy {
	sc := Global()
	if local {
		sc = LocalDefaults()
	}
	return Policy{
		Scoring:  sc,
		SeedMms:  0,
		SeedLen:  22,
		SeedIval: -1,
		Ival:     SimpleFunc{Type: FuncSqrt, Const: 0, Coef: 1.0},
		PosMin:   3.0,
		PosFrac:  0.3,
		RowMin:   3.0,
		RowMult:  2.0,
	}
}

// A SyntaxError describes a malformed token in a policy string.
type SyntaxError struct {
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("policy token %q: %s", e.Token, e.Msg)
}

func badToken(tok, format string, args ...interface{}) error {
	return &SyntaxError{Token: tok, Msg: fmt.Sprintf(format, args...)}
}

func parseFloats(tok, val string, min, max int) ([]float64, error) {
	parts := strings.Split(val, ",")
	if len(parts) < min || len(parts) > max {
		return nil, badToken(tok, "want %d-%d comma-separated values, got %d", min, max, len(parts))
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, badToken(tok, "malformed number %q", p)
		}
		out = append(out, f)
	}
	return out, nil
}

func parsePenalty(tok, val string) (PenaltyType, int, error) {
	switch {
	case val == "Q":
		return PenaltyQuality, 0, nil
	case val == "R" || val == "RQ":
		return PenaltyRoundedQuality, 0, nil
	case strings.HasPrefix(val, "C"):
		n, err := strconv.Atoi(val[1:])
		if err != nil {
			return 0, 0, badToken(tok, "malformed constant penalty %q", val)
		}
		return PenaltyConstant, n, nil
	}
	return 0, 0, badToken(tok, "want Cxx, Q, or R, got %q", val)
}

// ParsePolicy parses a LAB=VAL;LAB=VAL;... policy string into the full
// scoring and seed-layout configuration.  Labels are case sensitive; an
// empty string yields DefaultPolicy(local).  Errors are *SyntaxError values
// identifying the offending token.
func ParsePolicy(s string, local bool) (Policy, error) {
	p := DefaultPolicy(local)
	if s == "" {
		return p, nil
	}
	for _, tok := range strings.Split(s, ";") {
		if tok == "" {
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			return p, badToken(tok, "missing '='")
		}
		lab, val := tok[:eq], tok[eq+1:]
		switch lab {
		case "MA":
			n, err := strconv.Atoi(val)
			if err != nil {
				return p, badToken(tok, "malformed match bonus %q", val)
			}
			p.MatchBonus = n
		case "MMP":
			typ, c, err := parsePenalty(tok, val)
			if err != nil {
				return p, err
			}
			p.MismatchType, p.MismatchConst = typ, c
		case "NP":
			typ, c, err := parsePenalty(tok, val)
			if err != nil {
				return p, err
			}
			p.NType, p.NConst = typ, c
		case "RDG":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.RdGapConst, p.RdGapLinear = int(fs[0]), int(fs[1])
		case "RFG":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.RfGapConst, p.RfGapLinear = int(fs[0]), int(fs[1])
		case "MIN":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.MinScore = linear(fs[0], fs[1])
		case "FL":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.Floor = linear(fs[0], fs[1])
		case "NCEIL":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.NCeil = linear(fs[0], fs[1])
		case "SEED":
			fs, err := parseFloats(tok, val, 2, 3)
			if err != nil {
				return p, err
			}
			mm := int(fs[0])
			if mm < 0 || mm > 2 {
				return p, badToken(tok, "seed mismatches must be in [0, 2], got %d", mm)
			}
			p.SeedMms = mm
			p.SeedLen = int(fs[1])
			if p.SeedLen <= 0 {
				return p, badToken(tok, "seed length must be positive, got %d", p.SeedLen)
			}
			if len(fs) == 3 {
				p.SeedIval = int(fs[2])
			} else {
				p.SeedIval = -1
			}
		case "IVAL":
			parts := strings.SplitN(val, ",", 2)
			if len(parts) != 2 {
				return p, badToken(tok, "want {L|S|C},a[,b]")
			}
			var typ FuncType
			switch parts[0] {
			case "L":
				typ = FuncLinear
			case "S":
				typ = FuncSqrt
			case "C":
				typ = FuncCbrt
			default:
				return p, badToken(tok, "unknown interval type %q", parts[0])
			}
			fs, err := parseFloats(tok, parts[1], 1, 2)
			if err != nil {
				return p, err
			}
			b := 0.0
			if len(fs) == 2 {
				b = fs[1]
			}
			p.Ival = SimpleFunc{Type: typ, Const: b, Coef: fs[0]}
			p.SeedIval = -1
		case "POSF":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.PosMin, p.PosFrac = fs[0], fs[1]
		case "ROWM":
			fs, err := parseFloats(tok, val, 2, 2)
			if err != nil {
				return p, err
			}
			p.RowMin, p.RowMult = fs[0], fs[1]
		default:
			return p, badToken(tok, "unknown label %q", lab)
		}
	}
	return p, nil
}

func penaltyString(typ PenaltyType, c int) string {
	switch typ {
	case PenaltyQuality:
		return "Q"
	case PenaltyRoundedQuality:
		return "R"
	}
	return fmt.Sprintf("C%d", c)
}

func floatString(f float64) string {
	if math.IsInf(f, -1) {
		return "-Inf"
	}
	if math.IsInf(f, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// String renders the policy in canonical form: every label, fixed order.
// ParsePolicy(p.String(), p.Local) reproduces p.
func (p Policy) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MA=%d", p.MatchBonus)
	fmt.Fprintf(&b, ";MMP=%s", penaltyString(p.MismatchType, p.MismatchConst))
	fmt.Fprintf(&b, ";NP=%s", penaltyString(p.NType, p.NConst))
	fmt.Fprintf(&b, ";RDG=%d,%d", p.RdGapConst, p.RdGapLinear)
	fmt.Fprintf(&b, ";RFG=%d,%d", p.RfGapConst, p.RfGapLinear)
	fmt.Fprintf(&b, ";MIN=%s,%s", floatString(p.MinScore.Const), floatString(p.MinScore.Coef))
	fmt.Fprintf(&b, ";FL=%s,%s", floatString(p.Floor.Const), floatString(p.Floor.Coef))
	fmt.Fprintf(&b, ";NCEIL=%s,%s", floatString(p.NCeil.Const), floatString(p.NCeil.Coef))
	if p.SeedIval >= 0 {
		fmt.Fprintf(&b, ";SEED=%d,%d,%d", p.SeedMms, p.SeedLen, p.SeedIval)
	} else {
		fmt.Fprintf(&b, ";SEED=%d,%d", p.SeedMms, p.SeedLen)
		fmt.Fprintf(&b, ";IVAL=%s,%s,%s", p.Ival.Type, floatString(p.Ival.Coef), floatString(p.Ival.Const))
	}
	fmt.Fprintf(&b, ";POSF=%s,%s", floatString(p.PosMin), floatString(p.PosFrac))
	fmt.Fprintf(&b, ";ROWM=%s,%s", floatString(p.RowMin), floatString(p.RowMult))
	return b.String()
}
