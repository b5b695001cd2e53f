package segmentation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Recognized criteria keys. Each key maps to exactly one bound predicate over
// store_customers. Anything outside this set is rejected with a
// ValidationError rather than silently ignored, so admins are never surprised
// about who a segment actually targets.
const (
	KeyMinAge                = "min_age"
	KeyMaxAge                = "max_age"
	KeyMinTotalSpent         = "min_total_spent"
	KeyMaxTotalSpent         = "max_total_spent"
	KeyLoyaltyTier           = "loyalty_tier"
	KeyMinLoyaltyPoints      = "min_loyalty_points"
	KeyDaysSinceLastPurchase = "days_since_last_purchase"
	KeyPurchasedWithinDays   = "purchased_within_days"
	KeyJoinedWithinDays      = "joined_within_days"
	KeyHasEmail              = "has_email"
	KeyHasPhone              = "has_phone"
)

// CompiledQuery is the output of the criteria compiler: a parameterized count
// query and a reusable membership query over the same predicate set.
type CompiledQuery struct {
	CountSQL  string
	MemberSQL string
	Args      []interface{}
	UsedKeys  []string
}

// compiler accumulates bound conditions the same way the campaign query
// builder does: one $n placeholder per value, never raw interpolation.
type compiler struct {
	conditions []string
	args       []interface{}
	argCounter int
	usedKeys   []string
}

func (c *compiler) nextArg(value interface{}) string {
	c.args = append(c.args, value)
	placeholder := fmt.Sprintf("$%d", c.argCounter)
	c.argCounter++
	return placeholder
}

func (c *compiler) add(key, condition string) {
	c.conditions = append(c.conditions, condition)
	c.usedKeys = append(c.usedKeys, key)
}

// keyBuilders is the closed set of per-key predicate builders. Adding a new
// recognized criteria key means adding exactly one entry here plus a constant
// above.
var keyBuilders = map[string]func(c *compiler, value interface{}) error{
	KeyMinAge: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyMinAge, v)
		if err != nil {
			return err
		}
		c.add(KeyMinAge, fmt.Sprintf(
			"c.birth_date IS NOT NULL AND c.birth_date <= NOW() - (%s || ' years')::interval", c.nextArg(n)))
		return nil
	},
	KeyMaxAge: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyMaxAge, v)
		if err != nil {
			return err
		}
		c.add(KeyMaxAge, fmt.Sprintf(
			"c.birth_date IS NOT NULL AND c.birth_date > NOW() - ((%s + 1) || ' years')::interval", c.nextArg(n)))
		return nil
	},
	KeyMinTotalSpent: func(c *compiler, v interface{}) error {
		n, err := criteriaFloat(KeyMinTotalSpent, v)
		if err != nil {
			return err
		}
		c.add(KeyMinTotalSpent, fmt.Sprintf("c.total_spent >= %s", c.nextArg(n)))
		return nil
	},
	KeyMaxTotalSpent: func(c *compiler, v interface{}) error {
		n, err := criteriaFloat(KeyMaxTotalSpent, v)
		if err != nil {
			return err
		}
		c.add(KeyMaxTotalSpent, fmt.Sprintf("c.total_spent <= %s", c.nextArg(n)))
		return nil
	},
	KeyLoyaltyTier: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyLoyaltyTier, v)
		if err != nil {
			return err
		}
		c.add(KeyLoyaltyTier, fmt.Sprintf("c.loyalty_tier = %s", c.nextArg(n)))
		return nil
	},
	KeyMinLoyaltyPoints: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyMinLoyaltyPoints, v)
		if err != nil {
			return err
		}
		c.add(KeyMinLoyaltyPoints, fmt.Sprintf("c.loyalty_points >= %s", c.nextArg(n)))
		return nil
	},
	KeyDaysSinceLastPurchase: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyDaysSinceLastPurchase, v)
		if err != nil {
			return err
		}
		c.add(KeyDaysSinceLastPurchase, fmt.Sprintf(
			"(c.last_purchase_at IS NULL OR c.last_purchase_at < NOW() - (%s || ' days')::interval)", c.nextArg(n)))
		return nil
	},
	KeyPurchasedWithinDays: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyPurchasedWithinDays, v)
		if err != nil {
			return err
		}
		c.add(KeyPurchasedWithinDays, fmt.Sprintf(
			"c.last_purchase_at >= NOW() - (%s || ' days')::interval", c.nextArg(n)))
		return nil
	},
	KeyJoinedWithinDays: func(c *compiler, v interface{}) error {
		n, err := criteriaInt(KeyJoinedWithinDays, v)
		if err != nil {
			return err
		}
		c.add(KeyJoinedWithinDays, fmt.Sprintf(
			"c.created_at >= NOW() - (%s || ' days')::interval", c.nextArg(n)))
		return nil
	},
	KeyHasEmail: func(c *compiler, v interface{}) error {
		b, err := criteriaBool(KeyHasEmail, v)
		if err != nil {
			return err
		}
		if b {
			c.add(KeyHasEmail, "(c.email IS NOT NULL AND c.email != '')")
		} else {
			c.add(KeyHasEmail, "(c.email IS NULL OR c.email = '')")
		}
		return nil
	},
	KeyHasPhone: func(c *compiler, v interface{}) error {
		b, err := criteriaBool(KeyHasPhone, v)
		if err != nil {
			return err
		}
		if b {
			c.add(KeyHasPhone, "(c.phone IS NOT NULL AND c.phone != '')")
		} else {
			c.add(KeyHasPhone, "(c.phone IS NULL OR c.phone = '')")
		}
		return nil
	},
}

// RecognizedKeys returns the sorted closed key set, for admin-facing listings.
func RecognizedKeys() []string {
	keys := make([]string, 0, len(keyBuilders))
	for k := range keyBuilders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compile turns a criteria document into a bound count query and membership
// query. Keys are compiled in sorted order so identical criteria always
// produce identical SQL and argument lists.
func Compile(criteria map[string]any) (*CompiledQuery, error) {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		if _, ok := keyBuilders[k]; !ok {
			return nil, domain.NewValidationError(k, "unrecognized segment criteria key")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := &compiler{argCounter: 1}
	for _, k := range keys {
		if err := keyBuilders[k](c, criteria[k]); err != nil {
			return nil, err
		}
	}

	where := "1=1"
	if len(c.conditions) > 0 {
		where = strings.Join(c.conditions, "\n  AND ")
	}

	return &CompiledQuery{
		CountSQL: "SELECT COUNT(*) FROM store_customers c\nWHERE " + where,
		MemberSQL: `SELECT c.id, c.email, c.phone, c.first_name, c.last_name,
	c.loyalty_tier, c.loyalty_points, c.total_spent
FROM store_customers c
WHERE ` + where + "\nORDER BY c.created_at",
		Args:     c.args,
		UsedKeys: c.usedKeys,
	}, nil
}

func criteriaInt(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		// JSON numbers decode as float64
		if n != float64(int(n)) {
			return 0, domain.NewValidationError(key, "expected an integer value")
		}
		return int(n), nil
	default:
		return 0, domain.NewValidationError(key, fmt.Sprintf("expected a number, got %T", v))
	}
}

func criteriaFloat(key string, v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, domain.NewValidationError(key, fmt.Sprintf("expected a number, got %T", v))
	}
}

func criteriaBool(key string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, domain.NewValidationError(key, fmt.Sprintf("expected a boolean, got %T", v))
	}
	return b, nil
}
