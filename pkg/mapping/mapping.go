// Package mapping translates between the bridge's abstract order
// vocabulary and each exchange's raw one: abstract order kinds to venue
// order-type strings, and abstract statuses (closed, canceled) to
// (raw field, expected value) pairs checked against the exchange's
// order document. Tables are immutable after load.
package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
)

// OrderKind is the abstract order type vocabulary of the engine.
type OrderKind int

const (
	Market OrderKind = iota
	Limit
	Stop
	StopLimit
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// StatusKind is the abstract terminal-status vocabulary.
type StatusKind int

const (
	StatusClosed StatusKind = iota
	StatusCanceled
)

func (k StatusKind) String() string {
	if k == StatusClosed {
		return "closed"
	}
	return "canceled"
}

// Rule matches one raw order field against an expected value. Value
// compares loosely (string form) because exchanges disagree on types:
// one venue reports status "canceled", another reports result 1.
type Rule struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// Matches reports whether the order's raw field equals the rule value.
func (r Rule) Matches(o exchange.Order) bool {
	field := o.Field(r.Key)
	if field == nil {
		return false
	}
	return fmt.Sprint(field) == fmt.Sprint(r.Value)
}

// Table is one exchange's complete translation table. A Table supplied
// by the caller replaces the default wholesale; there is no field-level
// merging.
type Table struct {
	OrderTypes map[OrderKind]string
	Statuses   map[StatusKind]Rule
}

// OrderType returns the venue order-type string for an abstract kind.
func (t Table) OrderType(k OrderKind) (string, bool) {
	s, ok := t.OrderTypes[k]
	return s, ok
}

// Is reports whether the order document matches the rule for the given
// abstract status.
func (t Table) Is(k StatusKind, o exchange.Order) bool {
	rule, ok := t.Statuses[k]
	if !ok {
		return false
	}
	return rule.Matches(o)
}

// Validate checks the table covers the minimum vocabulary: all four
// order kinds and the closed/canceled statuses.
func (t Table) Validate() error {
	for _, k := range []OrderKind{Market, Limit, Stop, StopLimit} {
		if _, ok := t.OrderTypes[k]; !ok {
			return fmt.Errorf("mapping table missing order type %q", k)
		}
	}
	for _, k := range []StatusKind{StatusClosed, StatusCanceled} {
		rule, ok := t.Statuses[k]
		if !ok || rule.Key == "" {
			return fmt.Errorf("mapping table missing status rule %q", k)
		}
	}
	return nil
}

// Default returns the global default table: unified order-type names
// and status/closed, status/canceled rules.
func Default() Table {
	return Table{
		OrderTypes: map[OrderKind]string{
			Market:    "market",
			Limit:     "limit",
			Stop:      "stop",
			StopLimit: "stop limit",
		},
		Statuses: map[StatusKind]Rule{
			StatusClosed:   {Key: "status", Value: "closed"},
			StatusCanceled: {Key: "status", Value: "canceled"},
		},
	}
}

// builtin venue tables. Kraken names its stop orders "stop-loss";
// BitMEX uses plain "stop".
var builtin = map[string]Table{
	"kraken": {
		OrderTypes: map[OrderKind]string{
			Market:    "market",
			Limit:     "limit",
			Stop:      "stop-loss",
			StopLimit: "stop-loss-limit",
		},
		Statuses: map[StatusKind]Rule{
			StatusClosed:   {Key: "status", Value: "closed"},
			StatusCanceled: {Key: "status", Value: "canceled"},
		},
	},
	"bitmex": {
		OrderTypes: map[OrderKind]string{
			Market:    "market",
			Limit:     "limit",
			Stop:      "stop",
			StopLimit: "stopLimit",
		},
		Statuses: map[StatusKind]Rule{
			StatusClosed:   {Key: "status", Value: "closed"},
			StatusCanceled: {Key: "status", Value: "canceled"},
		},
	},
}

// For resolves the table for an exchange identity: a registered venue
// table when one exists, the global default otherwise.
func For(exchangeName string) Table {
	if t, ok := builtin[exchangeName]; ok {
		return t
	}
	return Default()
}

// Register installs or replaces the venue table for an exchange name.
// Intended for application startup, before brokers are constructed.
func Register(exchangeName string, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	builtin[exchangeName] = t
	return nil
}

// fileTable is the YAML wire form of a Table.
type fileTable struct {
	OrderTypes map[string]string   `yaml:"order_types"`
	Statuses   map[string]ruleYAML `yaml:"statuses"`
}

type ruleYAML struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

var orderKindNames = map[string]OrderKind{
	"market":     Market,
	"limit":      Limit,
	"stop":       Stop,
	"stop_limit": StopLimit,
}

var statusKindNames = map[string]StatusKind{
	"closed":   StatusClosed,
	"canceled": StatusCanceled,
}

// Parse decodes a YAML mapping table and validates it.
func Parse(data []byte) (Table, error) {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return Table{}, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	t := Table{
		OrderTypes: make(map[OrderKind]string, len(ft.OrderTypes)),
		Statuses:   make(map[StatusKind]Rule, len(ft.Statuses)),
	}
	for name, venue := range ft.OrderTypes {
		kind, ok := orderKindNames[name]
		if !ok {
			return Table{}, fmt.Errorf("unknown order kind %q in mapping file", name)
		}
		t.OrderTypes[kind] = venue
	}
	for name, rule := range ft.Statuses {
		kind, ok := statusKindNames[name]
		if !ok {
			return Table{}, fmt.Errorf("unknown status kind %q in mapping file", name)
		}
		t.Statuses[kind] = Rule{Key: rule.Key, Value: rule.Value}
	}

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Load reads and parses a YAML mapping table from disk.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}
