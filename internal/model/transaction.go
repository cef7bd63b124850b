package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionColumns is the leading column order of a per-persona
// transactions CSV. Keys outside this list are kept and appended.
var TransactionColumns = []string{
	"timestamp",
	"amount",
	"transaction_type",
	"currency",
	"description_raw",
	"description_cleaned",
	"merchant_name",
	"is_income",
	"risk_flag",
	"source_type",
	KeyUserID,
}

// Direction is the ledger side of a transaction.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// RiskFlag tags suspicious activity. The zero value means no flag.
type RiskFlag string

const (
	RiskNone              RiskFlag = ""
	RiskGambling          RiskFlag = "gambling"
	RiskUnexplainedInflow RiskFlag = "unexplained inflow"
	RiskSyntheticLoop     RiskFlag = "synthetic_loop"
	RiskFraudLike         RiskFlag = "fraud_like"
	RiskOverdraftFee      RiskFlag = "overdraft_fee"
	RiskBouncedDD         RiskFlag = "bounced_dd"
)

// RiskFlags lists every non-empty flag.
var RiskFlags = []RiskFlag{
	RiskGambling, RiskUnexplainedInflow, RiskSyntheticLoop,
	RiskFraudLike, RiskOverdraftFee, RiskBouncedDD,
}

// Valid reports whether r is empty or one of RiskFlags.
func (r RiskFlag) Valid() bool {
	if r == RiskNone {
		return true
	}
	for _, f := range RiskFlags {
		if r == f {
			return true
		}
	}
	return false
}

// Suspicious reports whether the flag requests follow-up money movement.
func (r RiskFlag) Suspicious() bool {
	return r == RiskUnexplainedInflow || r == RiskFraudLike
}

// SourceType classifies where a transaction came from or went to.
type SourceType string

const (
	SourcePlatform    SourceType = "platform"
	SourceAgency      SourceType = "agency"
	SourceTuition     SourceType = "tuition"
	SourceGovt        SourceType = "govt"
	SourceRefund      SourceType = "refund"
	SourceDD          SourceType = "dd"
	SourcePOS         SourceType = "pos"
	SourceATM         SourceType = "atm"
	SourceCashDeposit SourceType = "cash_deposit"
	SourceCheque      SourceType = "cheque"
	SourceP2P         SourceType = "p2p"
	SourceFraudLike   SourceType = "fraud_like"
)

// SourceTypes lists every valid source type.
var SourceTypes = []SourceType{
	SourcePlatform, SourceAgency, SourceTuition, SourceGovt, SourceRefund, SourceDD,
	SourcePOS, SourceATM, SourceCashDeposit, SourceCheque, SourceP2P, SourceFraudLike,
}

// Valid reports whether s is one of SourceTypes.
func (s SourceType) Valid() bool {
	for _, v := range SourceTypes {
		if s == v {
			return true
		}
	}
	return false
}

// Transaction is a typed view over one generated ledger entry.
type Transaction struct {
	Timestamp          time.Time
	HasZone            bool
	Amount             decimal.Decimal
	Direction          Direction
	Currency           string
	DescriptionRaw     string
	DescriptionCleaned string
	MerchantName       string
	IsIncome           bool
	RiskFlag           RiskFlag
	SourceType         SourceType
	UserID             string
}

var timestampLayouts = []struct {
	layout  string
	hasZone bool
}{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02 15:04:05-07:00", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// TransactionFromMap maps a raw record into a Transaction. It never fails;
// problems lists every field that could not be read or broke the schema.
func TransactionFromMap(m map[string]any) (Transaction, []string) {
	var (
		tx       Transaction
		problems []string
	)

	ts := str(m, "timestamp", "date")
	parsed := false
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l.layout, ts); err == nil {
			tx.Timestamp, tx.HasZone, parsed = t, l.hasZone, true
			break
		}
	}
	switch {
	case !parsed:
		problems = append(problems, fmt.Sprintf("timestamp %q unparseable", ts))
	case !tx.HasZone:
		problems = append(problems, fmt.Sprintf("timestamp %q has no timezone", ts))
	}

	if v, ok := lookup(m, "amount"); ok {
		amt, err := toDecimal(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("amount %v unparseable", v))
		}
		tx.Amount = amt
	} else {
		problems = append(problems, "amount missing")
	}

	tx.Direction = Direction(strings.ToUpper(str(m, "transaction_type", "direction")))
	if tx.Direction != Credit && tx.Direction != Debit {
		problems = append(problems, fmt.Sprintf("transaction_type %q not CREDIT/DEBIT", tx.Direction))
	}

	tx.Currency = strings.ToUpper(str(m, "currency"))
	if len(tx.Currency) != 3 {
		problems = append(problems, fmt.Sprintf("currency %q not an ISO code", tx.Currency))
	}

	tx.DescriptionRaw = str(m, "description_raw")
	tx.DescriptionCleaned = str(m, "description_cleaned")
	tx.MerchantName = str(m, "merchant_name")
	tx.UserID = str(m, KeyUserID)

	if b, ok := boolean(m, "is_income"); ok {
		tx.IsIncome = b
	} else {
		problems = append(problems, "is_income missing")
	}

	flag := str(m, "risk_flag")
	if strings.EqualFold(flag, "null") || strings.EqualFold(flag, "none") {
		flag = ""
	}
	tx.RiskFlag = RiskFlag(flag)
	if !tx.RiskFlag.Valid() {
		problems = append(problems, fmt.Sprintf("risk_flag %q unknown", flag))
	}

	tx.SourceType = SourceType(strings.ToLower(str(m, "source_type")))
	if !tx.SourceType.Valid() {
		problems = append(problems, fmt.Sprintf("source_type %q unknown", tx.SourceType))
	}

	return tx, problems
}

// SignAgrees reports whether the amount sign matches the direction and
// income flag: credits are positive, debits negative, income never negative.
func (t Transaction) SignAgrees() bool {
	switch t.Direction {
	case Credit:
		if t.Amount.Sign() < 0 {
			return false
		}
	case Debit:
		if t.Amount.Sign() > 0 {
			return false
		}
	}
	return !t.IsIncome || t.Amount.Sign() > 0
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case int64:
		return decimal.NewFromInt(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		s := strings.NewReplacer("£", "", ",", "", " ", "").Replace(t)
		return decimal.NewFromString(s)
	default:
		f, ok := toFloat(v)
		if !ok {
			return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
		}
		return decimal.NewFromFloat(f), nil
	}
}
