// Package incremental tracks the watermark of incremental fetching.
//
// A tracker is either disabled (no key configured) or enabled for one key.
// An enabled tracker starts without a value, or with the value of the prior
// run, and raises it monotonically as rows are processed. Every row must
// carry the key, with the same type as the first row; string watermarks must
// keep the same length, because the service compares strings
// lexicographically.
package incremental

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

// AllowedTypes are the EDM types usable as a watermark
var AllowedTypes = []entity.EdmType{
	entity.EdmString,
	entity.EdmInt32,
	entity.EdmInt64,
	entity.EdmDateTime,
	entity.EdmDouble,
	entity.EdmGuid,
}

// Tracker maintains the running maximum of the incremental fetching key
type Tracker struct {
	key     string
	enabled bool

	value     interface{}
	hasValue  bool
	valueType entity.EdmType
	valueLen  int

	typeChecked bool
	logger      *zap.Logger
}

// New creates a tracker for key, seeded from the prior state unless the
// prior state belongs to another key. An empty key disables tracking.
func New(key string, prior State, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		key:     key,
		enabled: key != "",
		logger:  logger.With(zap.String("component", "incremental")),
	}

	if !t.enabled || prior.Key != key || prior.Value == nil {
		return t
	}

	t.value = prior.Value
	t.hasValue = true
	t.valueType = entity.ParseEdmType(prior.Type)
	if t.valueType == entity.EdmString {
		t.valueLen = len(text(prior.Value))
	}
	return t
}

// Enabled reports whether a key is configured
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Key returns the tracked key
func (t *Tracker) Key() string {
	return t.key
}

// HasValue reports whether a watermark is known. Zero values count.
func (t *Tracker) HasValue() bool {
	return t.enabled && t.hasValue
}

// Watermark returns the lower bound for the next query, nil without a value
func (t *Tracker) Watermark() *query.Watermark {
	if !t.HasValue() {
		return nil
	}
	return &query.Watermark{
		Key:   t.key,
		Value: text(t.value),
		Type:  t.valueType,
	}
}

// Process feeds one row. rowIndex is zero-based and only used in messages.
func (t *Tracker) Process(e *entity.Entity, rowIndex int) error {
	if !t.enabled {
		return nil
	}

	v, ok := e.Value(t.key)
	if !ok {
		return errors.Newf(errors.ErrorTypeData,
			"Missing incremental fetching key \"%s\" in the row \"%d\".", t.key, rowIndex+1)
	}

	if t.valueType != "" && v.Type != t.valueType {
		return errors.Newf(errors.ErrorTypeData,
			"Incremental column type mismatch: \"%s\" and \"%s\" types found.", t.valueType, v.Type)
	}

	if !t.typeChecked {
		if !allowed(v.Type) {
			return errors.Newf(errors.ErrorTypeData,
				"Unexpected type \"%s\" of the incremental fetching \"%s\" key. Allowed types \"%s\".",
				v.Type, t.key, joinTypes(AllowedTypes))
		}
		if v.Type == entity.EdmString {
			t.logger.Warn(fmt.Sprintf(
				"Key \"%s\" - type \"%s\" is used for incremental fetching. "+
					"For string type, all values must be the same length, "+
					"otherwise incremental fetching fails.", t.key, v.Type))
		}
		t.typeChecked = true
	}

	if v.Type == entity.EdmString {
		s := v.String()
		if t.hasValue && len(s) != t.valueLen {
			return errors.Newf(errors.ErrorTypeData,
				"Unexpected value: Key \"%s\" - type \"%s\" is used for incremental fetching. "+
					"For string type, all values must be the same length. "+
					"This condition is not met, found \"%s\" (length=%d) and \"%s\" (length=%d). "+
					"Please use the same string lengths or a key with a different type: \"%s\".",
				t.key, v.Type, text(t.value), t.valueLen, s, len(s), joinTypes(AllowedTypes[1:]))
		}
		t.valueLen = len(s)
	}

	if t.hasValue {
		t.value = Max(t.value, v.Raw)
	} else {
		t.value = v.Raw
		t.hasValue = true
	}
	t.valueType = v.Type
	return nil
}

// State returns the watermark to persist. It reports false when tracking is
// disabled or no value is known.
func (t *Tracker) State() (State, bool) {
	if !t.HasValue() {
		return State{}, false
	}
	return State{Key: t.key, Value: t.value, Type: string(t.valueType)}, true
}

// Persist writes the watermark to path. Nothing is written without a value.
func (t *Tracker) Persist(path string) error {
	st, ok := t.State()
	if !ok {
		return nil
	}
	if err := SaveState(path, st); err != nil {
		return err
	}

	t.logger.Info(fmt.Sprintf("Incremental fetching: new state \"%s\" = \"%s\" (%s)",
		st.Key, text(st.Value), st.Type))
	return nil
}

func allowed(typ entity.EdmType) bool {
	for _, a := range AllowedTypes {
		if a == typ {
			return true
		}
	}
	return false
}

func joinTypes(types []entity.EdmType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, "\", \"")
}
