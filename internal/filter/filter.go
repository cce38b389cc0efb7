// Package filter translates recommendation row criteria documents into
// repository queries. Criteria are stored as JSON and authored by admins, so
// field names are validated against a whitelist before they reach SQL.
package filter

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// allowedFilterFields are the media file columns clauses may reference.
var allowedFilterFields = map[string]struct{}{
	"scanned_at":     {},
	"created_at":     {},
	"updated_at":     {},
	"duration":       {},
	"file_name":      {},
	"file_size":      {},
	"file_extension": {},
	"width":          {},
	"height":         {},
	"codec":          {},
	"bitrate":        {},
}

// allowedOrderFields are the columns order_by may reference.
var allowedOrderFields = map[string]struct{}{
	"scanned_at": {},
	"created_at": {},
	"updated_at": {},
	"duration":   {},
	"file_name":  {},
	"file_size":  {},
	"width":      {},
	"height":     {},
	"bitrate":    {},
}

// Clause is one predicate over a whitelisted column.
type Clause struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Criteria is a parsed filter document.
type Criteria struct {
	Where   []Clause `json:"where,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
	Order   string   `json:"order,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
}

// Parse decodes and validates a criteria document. An empty document is valid
// and matches everything.
func Parse(raw string) (*Criteria, error) {
	if strings.TrimSpace(raw) == "" {
		return &Criteria{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var c Criteria
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: parsing filter criteria: %s", models.ErrInvalidArgument, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every field, operator, and bound without touching the
// database.
func (c *Criteria) Validate() error {
	for _, clause := range c.Where {
		if clause.Field == "" || clause.Operator == "" {
			return fmt.Errorf("%w: filter clause needs field and operator", models.ErrInvalidArgument)
		}
		if _, ok := allowedFilterFields[clause.Field]; !ok {
			return fmt.Errorf("%w: filter field %q not allowed", models.ErrInvalidArgument, clause.Field)
		}
		if err := validateOperator(clause); err != nil {
			return err
		}
	}

	if c.OrderBy != "" {
		if _, ok := allowedOrderFields[c.OrderBy]; !ok {
			return fmt.Errorf("%w: order field %q not allowed", models.ErrInvalidArgument, c.OrderBy)
		}
	}
	if c.Order != "" {
		switch strings.ToUpper(c.Order) {
		case "ASC", "DESC":
		default:
			return fmt.Errorf("%w: order must be ASC or DESC", models.ErrInvalidArgument)
		}
	}
	if c.Limit != nil && *c.Limit < 1 {
		return fmt.Errorf("%w: limit must be positive", models.ErrInvalidArgument)
	}
	if c.Offset != nil && *c.Offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative", models.ErrInvalidArgument)
	}
	return nil
}

func validateOperator(clause Clause) error {
	switch clause.Operator {
	case "eq", "ne", "gt", "gte", "lt", "lte":
		return nil
	case "like", "ilike":
		if _, ok := clause.Value.(string); !ok {
			return fmt.Errorf("%w: %s operator requires a string value", models.ErrInvalidArgument, clause.Operator)
		}
		return nil
	case "in", "not_in":
		if _, ok := clause.Value.([]any); !ok {
			return fmt.Errorf("%w: %s operator requires a list value", models.ErrInvalidArgument, clause.Operator)
		}
		return nil
	case "is_null", "is_not_null":
		return nil
	default:
		return fmt.Errorf("%w: unsupported filter operator %q", models.ErrInvalidArgument, clause.Operator)
	}
}

// Apply narrows a media file query to the library and the criteria. Deleted
// rows are always excluded.
func (c *Criteria) Apply(query *gorm.DB, libraryPath string) *gorm.DB {
	// Trailing separator keeps /media from matching a sibling /media2.
	sep := string(filepath.Separator)
	prefix := escapeLike(strings.TrimSuffix(libraryPath, sep)) + sep
	query = query.
		Where(`file_path LIKE ? ESCAPE '\'`, prefix+"%").
		Where("deleted_at IS NULL")

	for _, clause := range c.Where {
		query = applyClause(query, clause)
	}

	if c.OrderBy != "" {
		direction := "ASC"
		if strings.EqualFold(c.Order, "DESC") {
			direction = "DESC"
		}
		query = query.Order(c.OrderBy + " " + direction)
	}
	if c.Limit != nil {
		query = query.Limit(*c.Limit)
	}
	if c.Offset != nil {
		query = query.Offset(*c.Offset)
	}
	return query
}

// applyClause assumes the clause passed Validate, so Field is a known column
// name and safe to interpolate.
func applyClause(query *gorm.DB, clause Clause) *gorm.DB {
	field := clause.Field
	switch clause.Operator {
	case "eq":
		return query.Where(field+" = ?", clause.Value)
	case "ne":
		return query.Where(field+" <> ?", clause.Value)
	case "gt":
		return query.Where(field+" > ?", clause.Value)
	case "gte":
		return query.Where(field+" >= ?", clause.Value)
	case "lt":
		return query.Where(field+" < ?", clause.Value)
	case "lte":
		return query.Where(field+" <= ?", clause.Value)
	case "like":
		return query.Where(field+" LIKE ?", clause.Value)
	case "ilike":
		return query.Where("LOWER("+field+") LIKE LOWER(?)", clause.Value)
	case "in":
		return query.Where(field+" IN ?", clause.Value)
	case "not_in":
		return query.Where(field+" NOT IN ?", clause.Value)
	case "is_null":
		return query.Where(field + " IS NULL")
	case "is_not_null":
		return query.Where(field + " IS NOT NULL")
	default:
		return query
	}
}

// escapeLike neutralizes LIKE wildcards in a literal path prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
