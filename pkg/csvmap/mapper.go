package csvmap

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

// Table is one output table of a mapping. Rows are buffered in a temporary
// CSV file without a header.
type Table struct {
	Name       string
	Header     []string
	PrimaryKey []string

	path   string
	file   *os.File
	w      *csv.Writer
	rows   int
	closed bool
}

// Path returns the temporary file, empty until the first row is written
func (t *Table) Path() string {
	if t.file == nil {
		return ""
	}
	return t.path
}

// Rows returns the number of rows written
func (t *Table) Rows() int {
	return t.rows
}

func (t *Table) write(cells []string) error {
	if t.file == nil {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create mapping directory")
		}
		f, err := os.Create(t.path)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create mapping file").
				WithDetail("table", t.Name)
		}
		t.file = f
		t.w = csv.NewWriter(f)
	}

	if err := t.w.Write(cells); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write mapping row").
			WithDetail("table", t.Name)
	}
	t.rows++
	return nil
}

func (t *Table) close() error {
	if t.file == nil || t.closed {
		return nil
	}
	t.closed = true

	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush mapping file")
	}
	return t.file.Close()
}

// Mapper writes rows into the tables described by a mapping
type Mapper struct {
	table   *Table
	columns []column
	parent  *parentKey
}

// New creates a mapper writing the root table tableName and its child tables
// into tempDir.
func New(mapping *entity.Object, tableName, tempDir string) (*Mapper, error) {
	m, err := newMapper(mapping, tableName, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, t := range m.Tables() {
		if seen[t.Name] {
			return nil, errors.Newf(errors.ErrorTypeConfig, "Duplicate destination table \"%s\".", t.Name)
		}
		seen[t.Name] = true
		t.path = filepath.Join(tempDir, t.Name+".csv")
	}

	return m, nil
}

func newMapper(mapping *entity.Object, tableName string, parent *parentKey) (*Mapper, error) {
	columns, err := parseMapping(mapping, tableName)
	if err != nil {
		return nil, err
	}

	t := &Table{Name: tableName}
	for _, c := range columns {
		if c.kind == typeTable {
			continue
		}
		t.Header = append(t.Header, c.destination)
		if c.primaryKey {
			t.PrimaryKey = append(t.PrimaryKey, c.destination)
		}
	}
	if parent != nil && !parent.disable {
		for _, h := range t.Header {
			if h == parent.destination {
				return nil, errors.Newf(errors.ErrorTypeConfig,
					"Parent key \"%s\" collides with a column of table \"%s\".", h, tableName)
			}
		}
		t.Header = append(t.Header, parent.destination)
		if parent.primaryKey {
			t.PrimaryKey = append(t.PrimaryKey, parent.destination)
		}
	}

	return &Mapper{table: t, columns: columns, parent: parent}, nil
}

// Tables returns the root table followed by all child tables, depth first
func (m *Mapper) Tables() []*Table {
	tables := []*Table{m.table}
	for _, c := range m.columns {
		if c.child != nil {
			tables = append(tables, c.child.Tables()...)
		}
	}
	return tables
}

// ParseRow maps one row. userData feeds the "user" columns.
func (m *Mapper) ParseRow(row *entity.Object, userData map[string]string) error {
	return m.writeRow(row, userData, "")
}

// Close flushes and closes all temporary files
func (m *Mapper) Close() error {
	var firstErr error
	for _, t := range m.Tables() {
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Mapper) writeRow(value interface{}, userData map[string]string, parentID string) error {
	cells := make([]string, 0, len(m.table.Header))
	var pkValues []string

	for _, c := range m.columns {
		var cell string
		switch c.kind {
		case typeTable:
			continue
		case typeUser:
			cell = userData[strings.Join(c.path, ".")]
		default:
			v, _ := lookup(value, c.path)
			s, err := toCell(v, c)
			if err != nil {
				return err
			}
			cell = s
		}
		cells = append(cells, cell)
		if c.primaryKey {
			pkValues = append(pkValues, cell)
		}
	}

	if m.parent != nil && !m.parent.disable {
		cells = append(cells, parentID)
	}

	if err := m.table.write(cells); err != nil {
		return err
	}

	var rowID string
	for _, c := range m.columns {
		if c.kind != typeTable {
			continue
		}

		nested, ok := lookup(value, c.path)
		if !ok || nested == nil {
			continue
		}

		if rowID == "" {
			rowID = identify(value, pkValues)
		}

		items, isArray := nested.([]interface{})
		if !isArray {
			items = []interface{}{nested}
		}
		for _, item := range items {
			if err := c.child.writeRow(item, userData, rowID); err != nil {
				return err
			}
		}
	}

	return nil
}

// identify returns the value linking child rows to a parent row: its
// primary key, or a hash of its content without one.
func identify(value interface{}, pkValues []string) string {
	if len(pkValues) > 0 {
		return strings.Join(pkValues, ",")
	}
	data, _ := gojson.Marshal(value)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func lookup(value interface{}, path []string) (interface{}, bool) {
	current := value
	for _, segment := range path {
		switch v := current.(type) {
		case *entity.Object:
			next, ok := v.Get(segment)
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			current = v[i]
		default:
			return nil, false
		}
	}
	return current, true
}

func toCell(v interface{}, c column) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case gojson.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		if !c.forceType {
			return "", errors.Newf(errors.ErrorTypeData,
				"Error writing \"%s\" column: Cannot write %s into a column. "+
					"Use \"forceType\" to store it as JSON or map it as a \"table\".",
				c.destination, describe(v))
		}
		data, err := gojson.Marshal(t)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode column value").
				WithDetail("column", c.destination)
		}
		return string(data), nil
	}
}
